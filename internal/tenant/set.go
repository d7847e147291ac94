package tenant

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/flemzord/agentmem/internal/config"
	"github.com/flemzord/agentmem/pkg/memdb"
)

// Set is the collection of tenant backends, keyed by tenant id.
// It is safe for concurrent use.
type Set struct {
	mu     sync.RWMutex
	cfg    config.StoreConfig
	logger *slog.Logger
	stores map[string]Backend
}

// NewSet creates an empty tenant set. Backends are built on demand
// according to the store config: disk-backed under cfg.DataDir when
// set, in-memory otherwise.
func NewSet(cfg config.StoreConfig, logger *slog.Logger) *Set {
	return &Set{
		cfg:    cfg,
		logger: logger,
		stores: make(map[string]Backend),
	}
}

// DataDir returns the configured data directory, empty for in-memory.
func (s *Set) DataDir() string { return s.cfg.DataDir }

// Dim returns the embedding dimension every tenant store uses.
func (s *Set) Dim() int { return s.cfg.Dim }

// GetOrCreate returns the backend for a tenant, creating it on first
// use.
func (s *Set) GetOrCreate(id string) (Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.stores[id]; ok {
		return b, nil
	}
	b, err := s.open(id)
	if err != nil {
		return nil, err
	}
	s.stores[id] = b
	s.logger.Info("tenant store created", "tenant", id, "disk", s.cfg.DataDir != "")
	return b, nil
}

// Lookup returns the backend for a tenant already held in memory.
func (s *Set) Lookup(id string) (Backend, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.stores[id]
	return b, ok
}

// Resolve returns the tenant's backend like Lookup, but additionally
// reopens a disk-backed tenant left behind by an earlier process, so
// queries keep working across restarts without a prior write. ok is
// false when the tenant has no episodes stored anywhere.
func (s *Set) Resolve(id string) (Backend, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.stores[id]; ok {
		return b, true, nil
	}
	if s.cfg.DataDir == "" {
		return nil, false, nil
	}
	meta := filepath.Join(s.cfg.DataDir, SanitizePath(id), "meta.json")
	if _, err := os.Stat(meta); err != nil {
		return nil, false, nil
	}
	b, err := s.open(id)
	if err != nil {
		return nil, false, err
	}
	s.stores[id] = b
	s.logger.Info("tenant store reopened", "tenant", id)
	return b, true, nil
}

// Replace installs a backend for a tenant, closing any previous one.
// Used when a tenant is loaded from a snapshot file.
func (s *Set) Replace(id string, b Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.stores[id]; ok {
		_ = old.Close()
	}
	s.stores[id] = b
}

// Len returns the number of live tenant backends.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stores)
}

// IDs returns the live tenant ids in sorted order.
func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.stores))
	for id := range s.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Range calls fn for each live tenant. If fn returns false, iteration
// stops. The lock is held for the entire iteration, so fn must not
// call back into the set.
func (s *Set) Range(fn func(id string, b Backend) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, b := range s.stores {
		if !fn(id, b) {
			return
		}
	}
}

// Episodes returns the total number of episodes across all tenants.
func (s *Set) Episodes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, b := range s.stores {
		total += b.Len()
	}
	return total
}

// CloseAll closes every backend and empties the set.
func (s *Set) CloseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for id, b := range s.stores {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", id, err))
		}
	}
	s.stores = make(map[string]Backend)
	return errors.Join(errs...)
}

// open builds a backend for a tenant per the store config.
func (s *Set) open(id string) (Backend, error) {
	if s.cfg.DataDir != "" {
		dir := filepath.Join(s.cfg.DataDir, SanitizePath(id))
		var opts memdb.DiskOptions
		switch {
		case memdb.Kind(s.cfg.Index) == memdb.KindHNSW:
			opts = memdb.HNSWOptions(s.cfg.Dim, s.cfg.MaxElements)
		case s.cfg.Checkpoint:
			opts = memdb.ExactCheckpointOptions(s.cfg.Dim)
		default:
			opts = memdb.ExactOptions(s.cfg.Dim)
		}
		ds, err := memdb.OpenDisk(dir, opts)
		if err != nil {
			return nil, fmt.Errorf("tenant %s: open disk store: %w", id, err)
		}
		return Disk(ds), nil
	}

	var (
		db  *memdb.DB
		err error
	)
	switch {
	case memdb.Kind(s.cfg.Index) == memdb.KindExact:
		db, err = memdb.NewExact(s.cfg.Dim)
	case s.cfg.MaxElements > 0:
		db, err = memdb.NewWithMaxElements(s.cfg.Dim, s.cfg.MaxElements)
	default:
		db, err = memdb.New(s.cfg.Dim)
	}
	if err != nil {
		return nil, fmt.Errorf("tenant %s: create store: %w", id, err)
	}
	return Memory(db), nil
}
