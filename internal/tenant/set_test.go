package tenant

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/flemzord/agentmem/internal/config"
	"github.com/flemzord/agentmem/pkg/episode"
	"github.com/flemzord/agentmem/pkg/memdb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memCfg() config.StoreConfig {
	return config.StoreConfig{Dim: 3, Index: "hnsw"}
}

func diskCfg(t *testing.T) config.StoreConfig {
	t.Helper()
	return config.StoreConfig{Dim: 3, Index: "exact", DataDir: t.TempDir(), Checkpoint: true}
}

func storeOne(t *testing.T, b Backend, taskID string) string {
	t.Helper()
	id, err := b.Store(episode.Episode{TaskID: taskID, Embedding: []float32{1, 0, 0}, Reward: 1})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	return id
}

func TestGetOrCreateReturnsSameBackend(t *testing.T) {
	set := NewSet(memCfg(), testLogger())

	a, err := set.GetOrCreate("acme")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	storeOne(t, a, "t1")

	b, err := set.GetOrCreate("acme")
	if err != nil {
		t.Fatalf("GetOrCreate() second call error = %v", err)
	}
	if b.Len() != 1 {
		t.Errorf("second handle Len() = %d, want 1 (same store)", b.Len())
	}
	if set.Len() != 1 {
		t.Errorf("set.Len() = %d, want 1", set.Len())
	}
}

func TestGetOrCreateHonorsIndexKind(t *testing.T) {
	for _, tt := range []struct {
		index string
		want  memdb.Kind
	}{
		{"exact", memdb.KindExact},
		{"hnsw", memdb.KindHNSW},
	} {
		t.Run(tt.index, func(t *testing.T) {
			set := NewSet(config.StoreConfig{Dim: 3, Index: tt.index}, testLogger())
			b, err := set.GetOrCreate("acme")
			if err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}
			if b.Kind() != tt.want {
				t.Errorf("Kind() = %q, want %q", b.Kind(), tt.want)
			}
		})
	}
}

func TestLookupMissesUnknownTenant(t *testing.T) {
	set := NewSet(memCfg(), testLogger())
	if _, ok := set.Lookup("ghost"); ok {
		t.Error("Lookup() found a tenant that was never created")
	}
}

func TestResolveInMemoryMiss(t *testing.T) {
	set := NewSet(memCfg(), testLogger())
	_, ok, err := set.Resolve("ghost")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ok {
		t.Error("Resolve() found a tenant with no store anywhere")
	}
}

func TestResolveReopensDiskTenant(t *testing.T) {
	cfg := diskCfg(t)

	set := NewSet(cfg, testLogger())
	b, err := set.GetOrCreate("acme")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	storeOne(t, b, "t1")
	if err := set.CloseAll(); err != nil {
		t.Fatalf("CloseAll() error = %v", err)
	}

	// Fresh set over the same directory, as after a restart.
	set = NewSet(cfg, testLogger())
	if _, ok := set.Lookup("acme"); ok {
		t.Fatal("Lookup() found tenant before Resolve")
	}
	reopened, ok, err := set.Resolve("acme")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !ok {
		t.Fatal("Resolve() did not reopen the disk tenant")
	}
	if reopened.Len() != 1 {
		t.Errorf("reopened Len() = %d, want 1", reopened.Len())
	}

	// Unknown tenants still miss even with a data dir.
	if _, ok, _ := set.Resolve("ghost"); ok {
		t.Error("Resolve() invented a tenant with no directory")
	}
}

func TestDiskTenantDirectoryIsSanitized(t *testing.T) {
	cfg := diskCfg(t)
	set := NewSet(cfg, testLogger())

	b, err := set.GetOrCreate("acme/../etc")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	storeOne(t, b, "t1")

	meta := filepath.Join(cfg.DataDir, "acme____etc", "meta.json")
	if _, err := os.Stat(meta); err != nil {
		t.Errorf("sanitized tenant dir missing meta.json: %v", err)
	}
}

func TestReplaceSwapsBackend(t *testing.T) {
	set := NewSet(memCfg(), testLogger())
	b, err := set.GetOrCreate("acme")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	storeOne(t, b, "old")

	db, err := memdb.NewExact(3)
	if err != nil {
		t.Fatalf("NewExact() error = %v", err)
	}
	set.Replace("acme", Memory(db))

	got, ok := set.Lookup("acme")
	if !ok {
		t.Fatal("Lookup() missed tenant after Replace")
	}
	if got.Len() != 0 {
		t.Errorf("replaced backend Len() = %d, want 0", got.Len())
	}
}

func TestIDsSortedAndEpisodesTotal(t *testing.T) {
	set := NewSet(memCfg(), testLogger())
	for _, id := range []string{"zeta", "acme", "mid"} {
		b, err := set.GetOrCreate(id)
		if err != nil {
			t.Fatalf("GetOrCreate(%q) error = %v", id, err)
		}
		storeOne(t, b, id)
	}

	ids := set.IDs()
	want := []string{"acme", "mid", "zeta"}
	if len(ids) != len(want) {
		t.Fatalf("IDs() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("IDs() = %v, want %v", ids, want)
		}
	}
	if got := set.Episodes(); got != 3 {
		t.Errorf("Episodes() = %d, want 3", got)
	}
}

func TestRangeStopsEarly(t *testing.T) {
	set := NewSet(memCfg(), testLogger())
	for _, id := range []string{"a", "b", "c"} {
		if _, err := set.GetOrCreate(id); err != nil {
			t.Fatalf("GetOrCreate(%q) error = %v", id, err)
		}
	}

	seen := 0
	set.Range(func(string, Backend) bool {
		seen++
		return false
	})
	if seen != 1 {
		t.Errorf("Range visited %d tenants after fn returned false, want 1", seen)
	}
}

func TestCloseAllEmptiesSet(t *testing.T) {
	set := NewSet(diskCfg(t), testLogger())
	b, err := set.GetOrCreate("acme")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	storeOne(t, b, "t1")

	if err := set.CloseAll(); err != nil {
		t.Fatalf("CloseAll() error = %v", err)
	}
	if set.Len() != 0 {
		t.Errorf("Len() = %d after CloseAll, want 0", set.Len())
	}
}

func TestMemoryBackendCheckpointIsNoop(t *testing.T) {
	db, err := memdb.NewExact(3)
	if err != nil {
		t.Fatalf("NewExact() error = %v", err)
	}
	b := Memory(db)
	if err := b.Checkpoint(); err != nil {
		t.Errorf("Checkpoint() error = %v, want nil", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

func TestDiskBackendSaveFileIsNoop(t *testing.T) {
	ds, err := memdb.OpenDisk(t.TempDir(), memdb.ExactOptions(3))
	if err != nil {
		t.Fatalf("OpenDisk() error = %v", err)
	}
	defer ds.Close()

	b := Disk(ds)
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := b.SaveFile(path); err != nil {
		t.Fatalf("SaveFile() error = %v, want nil", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("SaveFile() wrote a snapshot for a disk-backed store")
	}
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"acme", "acme"},
		{"Acme-01_x", "Acme-01_x"},
		{"a/b", "a_b"},
		{"a b.c", "a_b_c"},
		{"../../etc", "______etc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizePath(tt.in); got != tt.want {
			t.Errorf("SanitizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
