// Package memdb implements an embedding-indexed episodic memory store.
//
// A DB holds episodes (pkg/episode) keyed by id, plus a vector index over
// their state embeddings: either exact brute force or an approximate HNSW
// graph. Similarity queries combine nearest-neighbor candidate generation
// with metadata filters (reward, tags, task prefix, time range, source,
// user). Stores can be pruned by age, count, or reward, snapshotted to a
// single JSON document, or backed by an append-only JSONL log on disk.
//
// All methods are safe for concurrent use: mutations serialize behind a
// write lock, queries share a read lock.
package memdb

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/flemzord/agentmem/internal/index"
	"github.com/flemzord/agentmem/pkg/episode"
)

// Kind selects the vector index backing a DB.
type Kind string

const (
	// KindExact scans every stored vector on each query. Exhaustive,
	// deterministic, and unbounded.
	KindExact Kind = "exact"

	// KindHNSW searches a hierarchical navigable small world graph.
	// Approximate recall, bounded by a maximum element count.
	KindHNSW Kind = "hnsw"
)

// DefaultMaxElements is the HNSW capacity used by New.
const DefaultMaxElements = 20_000

// record pairs a stored episode with its insertion sequence number. The
// sequence survives prunes and rebuilds so tie-break ordering stays stable
// for the lifetime of the store.
type record struct {
	ep  episode.Episode
	seq uint64
}

// DB is an in-memory episodic memory store. Create one with NewExact, New,
// or NewWithMaxElements; restore one with LoadFile.
type DB struct {
	mu sync.RWMutex

	dim         int
	kind        Kind
	maxElements int // 0 means unbounded (exact index)
	overFetch   int // 0 means the automatic heuristic

	backend index.Backend
	recs    map[uint32]*record
	byID    map[string]uint32
	nextKey uint32
	nextSeq uint64
}

// NewExact creates a store with an exact brute-force index. No capacity
// limit applies.
func NewExact(dim int) (*DB, error) {
	return newDB(dim, KindExact, 0)
}

// New creates a store with an approximate HNSW index capped at
// DefaultMaxElements.
func New(dim int) (*DB, error) {
	return newDB(dim, KindHNSW, DefaultMaxElements)
}

// NewWithMaxElements creates a store with an approximate HNSW index capped
// at maxElements.
func NewWithMaxElements(dim, maxElements int) (*DB, error) {
	if maxElements <= 0 {
		return nil, fmt.Errorf("%w: max elements must be positive, got %d", ErrInvalidArgument, maxElements)
	}
	return newDB(dim, KindHNSW, maxElements)
}

func newDB(dim int, kind Kind, maxElements int) (*DB, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidArgument, dim)
	}
	return &DB{
		dim:         dim,
		kind:        kind,
		maxElements: maxElements,
		backend:     newBackend(kind, maxElements),
		recs:        make(map[uint32]*record),
		byID:        make(map[string]uint32),
	}, nil
}

func newBackend(kind Kind, maxElements int) index.Backend {
	if kind == KindExact {
		return index.NewExact()
	}
	return index.NewHNSW(index.HNSWConfig{Capacity: maxElements})
}

// Store inserts one episode and returns its id. An empty ep.ID gets a
// fresh UUID; a non-empty one must not collide with a stored episode.
// The episode is deep-copied, so the caller may reuse its slices. On an
// HNSW store at capacity, Store fails with ErrCapacity until a prune
// frees space.
func (db *DB) Store(ep episode.Episode) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.storeLocked(ep)
}

// StoreBatch inserts episodes in order under a single write lock and
// returns their ids. The first failure aborts the batch; episodes stored
// before it remain in the store.
func (db *DB) StoreBatch(eps []episode.Episode) ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ids := make([]string, 0, len(eps))
	for i, ep := range eps {
		id, err := db.storeLocked(ep)
		if err != nil {
			return nil, fmt.Errorf("memdb: batch episode %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (db *DB) storeLocked(ep episode.Episode) (string, error) {
	if err := db.checkEmbedding(ep.Embedding); err != nil {
		return "", err
	}
	if math.IsNaN(float64(ep.Reward)) || math.IsInf(float64(ep.Reward), 0) {
		return "", fmt.Errorf("%w: reward must be finite", ErrInvalidArgument)
	}
	if db.maxElements > 0 && len(db.recs) >= db.maxElements {
		return "", fmt.Errorf("%w: store holds %d elements", ErrCapacity, db.maxElements)
	}

	if ep.ID == "" {
		ep.ID = uuid.NewString()
	} else if _, exists := db.byID[ep.ID]; exists {
		return "", fmt.Errorf("%w: duplicate episode id %q", ErrInvalidArgument, ep.ID)
	}

	stored := ep.Clone()
	key := db.nextKey
	db.nextKey++
	db.backend.Insert(key, stored.Embedding)
	db.recs[key] = &record{ep: stored, seq: db.nextSeq}
	db.byID[stored.ID] = key
	db.nextSeq++
	return stored.ID, nil
}

// Get returns a copy of the episode with the given id, or ErrNotFound.
func (db *DB) Get(id string) (episode.Episode, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	key, ok := db.byID[id]
	if !ok {
		return episode.Episode{}, fmt.Errorf("%w: id %q", ErrNotFound, id)
	}
	return db.recs[key].ep.Clone(), nil
}

// Delete removes the episode with the given id, or returns ErrNotFound.
func (db *DB) Delete(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	key, ok := db.byID[id]
	if !ok {
		return fmt.Errorf("%w: id %q", ErrNotFound, id)
	}
	db.backend.Remove(key)
	delete(db.recs, key)
	delete(db.byID, id)
	return nil
}

// Len returns the number of stored episodes.
func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.recs)
}

// Dim returns the embedding dimension fixed at construction.
func (db *DB) Dim() int {
	return db.dim
}

// Kind returns the index backend kind fixed at construction.
func (db *DB) Kind() Kind {
	return db.kind
}

// MaxElements returns the HNSW capacity, or 0 for an unbounded exact store.
func (db *DB) MaxElements() int {
	return db.maxElements
}

// SetOverFetch overrides the candidate over-fetch multiplier used by HNSW
// queries. Zero or negative restores the automatic heuristic (4 when any
// non-reward filter is set, 2 otherwise). Exact stores always scan
// everything and ignore this setting.
func (db *DB) SetOverFetch(mult int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if mult < 0 {
		mult = 0
	}
	db.overFetch = mult
}

// Episodes returns a copy of every stored episode in insertion order.
func (db *DB) Episodes() []episode.Episode {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.snapshotLocked()
}

// snapshotLocked clones all episodes sorted by insertion sequence.
func (db *DB) snapshotLocked() []episode.Episode {
	recs := db.recordsLocked()
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	out := make([]episode.Episode, len(recs))
	for i, r := range recs {
		out[i] = r.ep.Clone()
	}
	return out
}

func (db *DB) recordsLocked() []*record {
	recs := make([]*record, 0, len(db.recs))
	for _, r := range db.recs {
		recs = append(recs, r)
	}
	return recs
}

// checkEmbedding rejects vectors of the wrong length or with non-finite
// components. Vectors are never truncated or padded.
func (db *DB) checkEmbedding(vec []float32) error {
	if len(vec) != db.dim {
		return &DimensionError{Expected: db.dim, Got: len(vec)}
	}
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: embedding contains a non-finite value", ErrInvalidArgument)
		}
	}
	return nil
}

// rebuildLocked replaces the index and record maps with exactly the kept
// records, reinserted in their original insertion order. Sequence numbers
// are preserved so tie-breaks stay stable across prunes.
func (db *DB) rebuildLocked(kept []*record) {
	sort.Slice(kept, func(i, j int) bool { return kept[i].seq < kept[j].seq })

	db.backend = newBackend(db.kind, db.maxElements)
	db.recs = make(map[uint32]*record, len(kept))
	db.byID = make(map[string]uint32, len(kept))
	db.nextKey = 0

	for _, r := range kept {
		key := db.nextKey
		db.nextKey++
		db.backend.Insert(key, r.ep.Embedding)
		db.recs[key] = r
		db.byID[r.ep.ID] = key
	}
}
