package memdb

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/flemzord/agentmem/pkg/episode"
)

const (
	metaFile       = "meta.json"
	episodesLog    = "episodes.jsonl"
	checkpointFile = "exact_checkpoint.json"

	// maxLogLine caps the scanner token size. Large embeddings make long
	// log lines, well past bufio's 64 KiB default.
	maxLogLine = 16 << 20
)

// diskMeta describes a store directory. It is written once on create and
// rewritten when a checkpoint lands.
type diskMeta struct {
	Dim                 int  `json:"dim"`
	IndexType           Kind `json:"index_type"`
	MaxElements         int  `json:"max_elements"`
	CheckpointLineCount *int `json:"checkpoint_line_count,omitempty"`
}

// exactCheckpoint is the on-disk snapshot that lets an exact store skip
// log replay on open.
type exactCheckpoint struct {
	Episodes []episode.Episode `json:"episodes"`
}

// DiskOptions configures OpenDisk. Dim is required; the zero Index means
// KindHNSW; MaxElements defaults to DefaultMaxElements for HNSW and is
// unused for exact. UseCheckpoint only applies to exact indexes.
type DiskOptions struct {
	Dim           int
	Index         Kind
	MaxElements   int
	UseCheckpoint bool
}

// HNSWOptions returns DiskOptions for an approximate store.
func HNSWOptions(dim, maxElements int) DiskOptions {
	return DiskOptions{Dim: dim, Index: KindHNSW, MaxElements: maxElements}
}

// ExactOptions returns DiskOptions for an exact store.
func ExactOptions(dim int) DiskOptions {
	return DiskOptions{Dim: dim, Index: KindExact}
}

// ExactCheckpointOptions returns DiskOptions for an exact store with
// checkpointing enabled, so Checkpoint can make reopen skip log replay.
func ExactCheckpointOptions(dim int) DiskOptions {
	return DiskOptions{Dim: dim, Index: KindExact, UseCheckpoint: true}
}

// DiskStore is a DB whose episodes also live in an append-only JSONL log
// under a directory, so the store survives restarts. The index stays in
// memory and is rebuilt on open by replaying the log, or restored from a
// checkpoint when one is valid. Every Store fsyncs the log before
// returning; prunes compact the log in place.
type DiskStore struct {
	mu sync.Mutex

	db            *DB
	dir           string
	meta          diskMeta
	log           *os.File
	lines         int // non-empty lines currently in the log
	useCheckpoint bool
}

// OpenDisk opens or creates a disk-backed store at dir. For an existing
// directory the on-disk meta decides the index kind and capacity, and the
// requested dimension must match; a fresh directory is initialized from
// opts.
func OpenDisk(dir string, opts DiskOptions) (*DiskStore, error) {
	if opts.Dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidArgument, opts.Dim)
	}
	switch opts.Index {
	case "":
		opts.Index = KindHNSW
	case KindExact, KindHNSW:
	default:
		return nil, fmt.Errorf("%w: unknown index kind %q", ErrInvalidArgument, opts.Index)
	}
	if opts.Index == KindHNSW && opts.MaxElements <= 0 {
		opts.MaxElements = DefaultMaxElements
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("memdb: create %s: %w", dir, err)
	}

	metaPath := filepath.Join(dir, metaFile)
	logPath := filepath.Join(dir, episodesLog)

	var meta diskMeta
	data, err := os.ReadFile(metaPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptFile, metaPath, err)
		}
		if meta.Dim <= 0 {
			return nil, fmt.Errorf("%w: %s: missing dimension", ErrCorruptFile, metaPath)
		}
		if meta.Dim != opts.Dim {
			return nil, &DimensionError{Expected: meta.Dim, Got: opts.Dim}
		}
		if meta.IndexType != KindExact {
			meta.IndexType = KindHNSW
		}
		if meta.IndexType == KindHNSW && meta.MaxElements <= 0 {
			meta.MaxElements = DefaultMaxElements
		}
	case errors.Is(err, os.ErrNotExist):
		meta = diskMeta{Dim: opts.Dim, IndexType: opts.Index, MaxElements: opts.MaxElements}
		if err := writeMetaFile(metaPath, meta); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("memdb: read %s: %w", metaPath, err)
	}

	db, err := newDB(meta.Dim, meta.IndexType, meta.MaxElements)
	if err != nil {
		return nil, err
	}

	lines := 0
	if _, err := os.Stat(logPath); err == nil {
		lines, err = countLogLines(logPath)
		if err != nil {
			return nil, err
		}
		restored := false
		if opts.UseCheckpoint && meta.IndexType == KindExact &&
			meta.CheckpointLineCount != nil && *meta.CheckpointLineCount == lines {
			cpPath := filepath.Join(dir, checkpointFile)
			if _, err := os.Stat(cpPath); err == nil {
				if err := loadCheckpoint(db, cpPath); err != nil {
					return nil, err
				}
				restored = true
			}
		}
		if !restored {
			if err := replayLog(db, logPath); err != nil {
				return nil, err
			}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("memdb: stat %s: %w", logPath, err)
	}

	logF, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("memdb: open %s: %w", logPath, err)
	}

	return &DiskStore{
		db:            db,
		dir:           dir,
		meta:          meta,
		log:           logF,
		lines:         lines,
		useCheckpoint: opts.UseCheckpoint,
	}, nil
}

func countLogLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("memdb: open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	n := 0
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("memdb: scan %s: %w", path, err)
	}
	return n, nil
}

func loadCheckpoint(db *DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("memdb: read %s: %w", path, err)
	}
	var cp exactCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptFile, path, err)
	}
	for _, ep := range cp.Episodes {
		if _, err := db.Store(ep); err != nil {
			return fmt.Errorf("memdb: restore %s: %w", path, err)
		}
	}
	return nil
}

func replayLog(db *DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("memdb: open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ep episode.Episode
		if err := json.Unmarshal([]byte(line), &ep); err != nil {
			return fmt.Errorf("%w: %s line %d: %v", ErrCorruptFile, path, n, err)
		}
		if _, err := db.Store(ep); err != nil {
			return fmt.Errorf("memdb: replay %s line %d: %w", path, n, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("memdb: scan %s: %w", path, err)
	}
	return nil
}

// Store appends one episode to the log (fsynced) and inserts it into the
// in-memory index. An empty ep.ID gets a fresh UUID.
func (s *DiskStore) Store(ep episode.Episode) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(ep)
}

// StoreBatch stores episodes in order. The first failure aborts the batch;
// episodes stored before it remain in the store and the log.
func (s *DiskStore) StoreBatch(eps []episode.Episode) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(eps))
	for i, ep := range eps {
		id, err := s.storeLocked(ep)
		if err != nil {
			return nil, fmt.Errorf("memdb: batch episode %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *DiskStore) storeLocked(ep episode.Episode) (string, error) {
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	id, err := s.db.Store(ep)
	if err != nil {
		return "", err
	}
	if err := s.appendLocked(ep); err != nil {
		// Back out the memory insert so the store matches the log.
		_ = s.db.Delete(id)
		return "", err
	}
	return id, nil
}

func (s *DiskStore) appendLocked(ep episode.Episode) error {
	line, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("memdb: encode episode: %w", err)
	}
	if _, err := s.log.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("memdb: append %s: %w", episodesLog, err)
	}
	if err := s.log.Sync(); err != nil {
		return fmt.Errorf("memdb: sync %s: %w", episodesLog, err)
	}
	s.lines++
	return nil
}

// Query returns the nearest stored episodes passing opts, like DB.Query.
func (s *DiskStore) Query(vec []float32, opts QueryOptions) ([]episode.Episode, error) {
	return s.db.Query(vec, opts)
}

// QueryBatch runs one reward-filtered query per vector, like DB.QueryBatch.
func (s *DiskStore) QueryBatch(vecs [][]float32, minReward float32, topK int) ([][]episode.Episode, error) {
	return s.db.QueryBatch(vecs, minReward, topK)
}

// Get returns a copy of the episode with the given id, or ErrNotFound.
func (s *DiskStore) Get(id string) (episode.Episode, error) {
	return s.db.Get(id)
}

// Episodes returns a copy of every stored episode in insertion order.
func (s *DiskStore) Episodes() []episode.Episode {
	return s.db.Episodes()
}

// Len returns the number of stored episodes.
func (s *DiskStore) Len() int { return s.db.Len() }

// Dim returns the embedding dimension.
func (s *DiskStore) Dim() int { return s.db.Dim() }

// Kind returns the index backend kind recorded in the directory meta.
func (s *DiskStore) Kind() Kind { return s.db.Kind() }

// Dir returns the directory backing this store.
func (s *DiskStore) Dir() string { return s.dir }

// PruneOlderThan removes episodes older than cutoffMs and compacts the
// log. Episodes without a timestamp are kept. See DB.PruneOlderThan.
func (s *DiskStore) PruneOlderThan(cutoffMs int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.db.PruneOlderThan(cutoffMs)
	if err != nil || removed == 0 {
		return removed, err
	}
	return removed, s.compactLocked()
}

// PruneKeepNewest keeps the n most recent episodes and compacts the log.
// See DB.PruneKeepNewest.
func (s *DiskStore) PruneKeepNewest(n int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.db.PruneKeepNewest(n)
	if err != nil || removed == 0 {
		return removed, err
	}
	return removed, s.compactLocked()
}

// PruneKeepHighestReward keeps the n highest-reward episodes and compacts
// the log. See DB.PruneKeepHighestReward.
func (s *DiskStore) PruneKeepHighestReward(n int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.db.PruneKeepHighestReward(n)
	if err != nil || removed == 0 {
		return removed, err
	}
	return removed, s.compactLocked()
}

// compactLocked rewrites the log to exactly the surviving episodes and
// removes any checkpoint, which the rewrite just invalidated.
func (s *DiskStore) compactLocked() error {
	eps := s.db.Episodes()
	var buf bytes.Buffer
	for _, ep := range eps {
		line, err := json.Marshal(ep)
		if err != nil {
			return fmt.Errorf("memdb: encode episode: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	if err := s.log.Close(); err != nil {
		return fmt.Errorf("memdb: close %s: %w", episodesLog, err)
	}
	logPath := filepath.Join(s.dir, episodesLog)
	f, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("memdb: truncate %s: %w", episodesLog, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("memdb: rewrite %s: %w", episodesLog, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("memdb: sync %s: %w", episodesLog, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("memdb: close %s: %w", episodesLog, err)
	}

	logF, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("memdb: reopen %s: %w", episodesLog, err)
	}
	s.log = logF
	s.lines = len(eps)

	return s.removeCheckpointLocked()
}

func (s *DiskStore) removeCheckpointLocked() error {
	err := os.Remove(filepath.Join(s.dir, checkpointFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("memdb: remove %s: %w", checkpointFile, err)
	}
	return nil
}

// Checkpoint writes the exact-index snapshot that lets the next open skip
// log replay, and records the covered line count in the directory meta.
// It is a no-op unless the store was opened with checkpointing enabled on
// an exact index.
func (s *DiskStore) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.useCheckpoint || s.db.Kind() != KindExact {
		return nil
	}

	cp := exactCheckpoint{Episodes: s.db.Episodes()}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("memdb: encode checkpoint: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, checkpointFile), data, 0o644); err != nil {
		return fmt.Errorf("memdb: write %s: %w", checkpointFile, err)
	}

	lines := s.lines
	s.meta.CheckpointLineCount = &lines
	return writeMetaFile(filepath.Join(s.dir, metaFile), s.meta)
}

// Close releases the log file handle. The store must not be used after.
func (s *DiskStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.log.Close(); err != nil {
		return fmt.Errorf("memdb: close %s: %w", episodesLog, err)
	}
	return nil
}

func writeMetaFile(path string, meta diskMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("memdb: encode meta: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("memdb: write %s: %w", path, err)
	}
	return nil
}
