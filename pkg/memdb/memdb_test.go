package memdb

import (
	"errors"
	"sync"
	"testing"

	"github.com/flemzord/agentmem/pkg/episode"
)

func newEpisode(task string, vec []float32, reward float32) episode.Episode {
	return episode.Episode{TaskID: task, Embedding: vec, Reward: reward}
}

func newTimedEpisode(task string, vec []float32, reward float32, ms int64) episode.Episode {
	ep := newEpisode(task, vec, reward)
	ep.SetTimestamp(ms)
	return ep
}

func mustStore(t *testing.T, db *DB, ep episode.Episode) string {
	t.Helper()
	id, err := db.Store(ep)
	if err != nil {
		t.Fatalf("Store() failed: %v", err)
	}
	return id
}

func mustNewExact(t *testing.T, dim int) *DB {
	t.Helper()
	db, err := NewExact(dim)
	if err != nil {
		t.Fatalf("NewExact(%d) failed: %v", dim, err)
	}
	return db
}

func mustNewHNSW(t *testing.T, dim, maxElements int) *DB {
	t.Helper()
	db, err := NewWithMaxElements(dim, maxElements)
	if err != nil {
		t.Fatalf("NewWithMaxElements(%d, %d) failed: %v", dim, maxElements, err)
	}
	return db
}

func TestNew_InvalidArguments(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fn   func() (*DB, error)
	}{
		{"exact zero dim", func() (*DB, error) { return NewExact(0) }},
		{"exact negative dim", func() (*DB, error) { return NewExact(-3) }},
		{"hnsw zero dim", func() (*DB, error) { return New(0) }},
		{"hnsw zero cap", func() (*DB, error) { return NewWithMaxElements(4, 0) }},
		{"hnsw negative cap", func() (*DB, error) { return NewWithMaxElements(4, -1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.fn(); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("got %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	db, err := New(8)
	if err != nil {
		t.Fatalf("New(8) failed: %v", err)
	}
	if db.Kind() != KindHNSW {
		t.Errorf("Kind() = %q, want %q", db.Kind(), KindHNSW)
	}
	if db.MaxElements() != DefaultMaxElements {
		t.Errorf("MaxElements() = %d, want %d", db.MaxElements(), DefaultMaxElements)
	}
	if db.Dim() != 8 {
		t.Errorf("Dim() = %d, want 8", db.Dim())
	}

	exact := mustNewExact(t, 8)
	if exact.Kind() != KindExact {
		t.Errorf("Kind() = %q, want %q", exact.Kind(), KindExact)
	}
	if exact.MaxElements() != 0 {
		t.Errorf("MaxElements() = %d, want 0 (unbounded)", exact.MaxElements())
	}
}

func TestDB_StoreAssignsID(t *testing.T) {
	t.Parallel()

	db := mustNewExact(t, 2)

	id := mustStore(t, db, newEpisode("t1", []float32{1, 2}, 0.5))
	if id == "" {
		t.Fatal("Store returned an empty id")
	}

	got, err := db.Get(id)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", id, err)
	}
	if got.ID != id {
		t.Errorf("stored ID = %q, want %q", got.ID, id)
	}

	// Caller-provided ids are preserved.
	ep := newEpisode("t2", []float32{3, 4}, 0.1)
	ep.ID = "custom-id"
	id2 := mustStore(t, db, ep)
	if id2 != "custom-id" {
		t.Errorf("Store returned %q, want the caller id", id2)
	}
}

func TestDB_StoreDuplicateID(t *testing.T) {
	t.Parallel()

	db := mustNewExact(t, 2)
	ep := newEpisode("t", []float32{1, 0}, 0)
	ep.ID = "dup"
	mustStore(t, db, ep)

	if _, err := db.Store(ep); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("duplicate id: got %v, want ErrInvalidArgument", err)
	}
	if db.Len() != 1 {
		t.Errorf("Len() = %d, want 1", db.Len())
	}
}

func TestDB_DimensionMismatch(t *testing.T) {
	t.Parallel()

	db := mustNewExact(t, 3)

	_, err := db.Store(newEpisode("t", []float32{1, 2}, 0))
	var dimErr *DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("got %v, want *DimensionError", err)
	}
	if dimErr.Expected != 3 || dimErr.Got != 2 {
		t.Errorf("DimensionError = {%d, %d}, want {3, 2}", dimErr.Expected, dimErr.Got)
	}

	// The same invariant holds on the query side.
	_, err = db.Query([]float32{1, 2, 3, 4}, QueryOptions{TopK: 1})
	if !errors.As(err, &dimErr) {
		t.Fatalf("Query: got %v, want *DimensionError", err)
	}
	if dimErr.Expected != 3 || dimErr.Got != 4 {
		t.Errorf("DimensionError = {%d, %d}, want {3, 4}", dimErr.Expected, dimErr.Got)
	}
	if db.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after rejected inserts", db.Len())
	}
}

func TestDB_StoreRejectsNonFinite(t *testing.T) {
	t.Parallel()

	db := mustNewExact(t, 2)
	nan := float32(0)
	nan /= nan // NaN without importing math in the test

	if _, err := db.Store(newEpisode("t", []float32{nan, 1}, 0)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NaN embedding: got %v, want ErrInvalidArgument", err)
	}
	if _, err := db.Store(newEpisode("t", []float32{1, 1}, nan)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NaN reward: got %v, want ErrInvalidArgument", err)
	}
}

func TestDB_Capacity(t *testing.T) {
	t.Parallel()

	db := mustNewHNSW(t, 2, 3)
	for i := 0; i < 3; i++ {
		mustStore(t, db, newTimedEpisode("t", []float32{float32(i), 0}, 0, int64(i)))
	}

	_, err := db.Store(newEpisode("t", []float32{9, 9}, 0))
	if !errors.Is(err, ErrCapacity) {
		t.Fatalf("got %v, want ErrCapacity", err)
	}

	// Pruning frees space for new inserts.
	removed, err := db.PruneKeepNewest(1)
	if err != nil {
		t.Fatalf("PruneKeepNewest(1) failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	mustStore(t, db, newEpisode("t", []float32{9, 9}, 0))
	if db.Len() != 2 {
		t.Errorf("Len() = %d, want 2", db.Len())
	}
}

func TestDB_GetAndDelete(t *testing.T) {
	t.Parallel()

	db := mustNewExact(t, 2)
	id := mustStore(t, db, newEpisode("t", []float32{1, 2}, 0.7))

	if _, err := db.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing): got %v, want ErrNotFound", err)
	}

	if err := db.Delete(id); err != nil {
		t.Fatalf("Delete(%q) failed: %v", id, err)
	}
	if db.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after delete", db.Len())
	}
	if _, err := db.Get(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: got %v, want ErrNotFound", err)
	}
	if err := db.Delete(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: got %v, want ErrNotFound", err)
	}

	// Deleted episodes never come back from queries.
	res, err := db.Query([]float32{1, 2}, QueryOptions{TopK: 5})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(res) != 0 {
		t.Errorf("Query returned %d results, want 0", len(res))
	}
}

func TestDB_SelfMatch(t *testing.T) {
	t.Parallel()

	for _, kind := range []Kind{KindExact, KindHNSW} {
		t.Run(string(kind), func(t *testing.T) {
			var db *DB
			if kind == KindExact {
				db = mustNewExact(t, 4)
			} else {
				db = mustNewHNSW(t, 4, 100)
			}

			vecs := [][]float32{
				{1, 0, 0, 0},
				{0, 1, 0, 0},
				{0, 0, 1, 0},
				{0.5, 0.5, 0, 0},
			}
			ids := make([]string, len(vecs))
			for i, v := range vecs {
				ids[i] = mustStore(t, db, newEpisode("t", v, 0))
			}

			// Querying a stored embedding returns that episode first, at
			// distance zero ahead of everything else.
			for i, v := range vecs {
				res, err := db.Query(v, QueryOptions{TopK: 1})
				if err != nil {
					t.Fatalf("Query failed: %v", err)
				}
				if len(res) != 1 {
					t.Fatalf("got %d results, want 1", len(res))
				}
				if res[0].ID != ids[i] {
					t.Errorf("vector %d: got id %q, want %q", i, res[0].ID, ids[i])
				}
			}
		})
	}
}

func TestDB_StoreBatch(t *testing.T) {
	t.Parallel()

	db := mustNewExact(t, 2)
	ids, err := db.StoreBatch([]episode.Episode{
		newEpisode("a", []float32{1, 0}, 0),
		newEpisode("b", []float32{0, 1}, 0),
	})
	if err != nil {
		t.Fatalf("StoreBatch failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2", len(ids))
	}
	if db.Len() != 2 {
		t.Errorf("Len() = %d, want 2", db.Len())
	}

	// A mid-batch failure keeps the episodes stored before it.
	_, err = db.StoreBatch([]episode.Episode{
		newEpisode("c", []float32{1, 1}, 0),
		newEpisode("bad", []float32{1}, 0),
		newEpisode("d", []float32{2, 2}, 0),
	})
	var dimErr *DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("got %v, want *DimensionError", err)
	}
	if db.Len() != 3 {
		t.Errorf("Len() = %d, want 3 (prefix of failed batch kept)", db.Len())
	}
}

func TestDB_CloneIsolation(t *testing.T) {
	t.Parallel()

	db := mustNewExact(t, 2)
	vec := []float32{1, 2}
	ep := newEpisode("t", vec, 0)
	ep.Tags = []string{"a"}
	id := mustStore(t, db, ep)

	// Mutating the caller's slices must not affect the stored episode.
	vec[0] = 99
	ep.Tags[0] = "mutated"

	got, err := db.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Embedding[0] != 1 {
		t.Errorf("stored embedding[0] = %v, want 1", got.Embedding[0])
	}
	if got.Tags[0] != "a" {
		t.Errorf("stored tag = %q, want %q", got.Tags[0], "a")
	}

	// And mutating a returned copy must not affect the store.
	got.Embedding[0] = -1
	again, _ := db.Get(id)
	if again.Embedding[0] != 1 {
		t.Errorf("store was mutated through a returned copy")
	}
}

func TestDB_EpisodesInsertionOrder(t *testing.T) {
	t.Parallel()

	db := mustNewExact(t, 2)
	want := []string{"e1", "e2", "e3"}
	for i, id := range want {
		ep := newEpisode("t", []float32{float32(i), 0}, 0)
		ep.ID = id
		mustStore(t, db, ep)
	}

	eps := db.Episodes()
	if len(eps) != len(want) {
		t.Fatalf("got %d episodes, want %d", len(eps), len(want))
	}
	for i, ep := range eps {
		if ep.ID != want[i] {
			t.Errorf("episode %d: id = %q, want %q", i, ep.ID, want[i])
		}
	}
}

func TestDB_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	db := mustNewExact(t, 2)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = db.Store(newEpisode("t", []float32{float32(i), 0}, 0))
		}()
		go func() {
			defer wg.Done()
			_, _ = db.Query([]float32{0, 0}, QueryOptions{TopK: 3})
		}()
		go func() {
			defer wg.Done()
			db.Len()
		}()
	}
	wg.Wait()

	if db.Len() != 50 {
		t.Errorf("Len() = %d, want 50", db.Len())
	}
}
