package memdb

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/flemzord/agentmem/pkg/episode"
)

// fileVersion is the newest snapshot format this build writes and reads.
const fileVersion = 1

// fileDoc is the self-describing snapshot document. Unknown fields in
// newer-but-compatible files are ignored on load.
type fileDoc struct {
	Version     int               `json:"version"`
	Dim         int               `json:"dim"`
	Index       Kind              `json:"index"`
	MaxElements int               `json:"max_elements,omitempty"`
	Episodes    []episode.Episode `json:"episodes"`
}

// SaveFile writes the whole store to path as a single JSON document:
// version, dimension, index kind, capacity, and every episode in insertion
// order. The snapshot is taken under the read lock.
func (db *DB) SaveFile(path string) error {
	db.mu.RLock()
	doc := fileDoc{
		Version:     fileVersion,
		Dim:         db.dim,
		Index:       db.kind,
		MaxElements: db.maxElements,
		Episodes:    db.snapshotLocked(),
	}
	db.mu.RUnlock()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("memdb: encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("memdb: write snapshot %s: %w", path, err)
	}
	return nil
}

// LoadFile reads a snapshot written by SaveFile and rebuilds a store from
// it, reinserting every episode so the index is reconstructed. kind
// overrides the index recorded in the file; pass the empty Kind to keep
// it. Garbled documents fail with ErrCorruptFile and load nothing; files
// from a newer format fail with ErrIncompatibleVersion.
func LoadFile(path string, kind Kind) (*DB, error) {
	switch kind {
	case "", KindExact, KindHNSW:
	default:
		return nil, fmt.Errorf("%w: unknown index kind %q", ErrInvalidArgument, kind)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("memdb: read snapshot %s: %w", path, err)
	}

	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptFile, path, err)
	}
	if doc.Version <= 0 || doc.Dim <= 0 {
		return nil, fmt.Errorf("%w: %s: missing version or dimension", ErrCorruptFile, path)
	}
	if doc.Version > fileVersion {
		return nil, fmt.Errorf("%w: %s is version %d, this build reads up to %d",
			ErrIncompatibleVersion, path, doc.Version, fileVersion)
	}
	if kind == "" {
		kind = doc.Index
	}

	var db *DB
	switch kind {
	case KindExact:
		db, err = NewExact(doc.Dim)
	case KindHNSW:
		max := doc.MaxElements
		if max <= 0 {
			max = DefaultMaxElements
		}
		if max < len(doc.Episodes) {
			max = len(doc.Episodes)
		}
		db, err = NewWithMaxElements(doc.Dim, max)
	default:
		return nil, fmt.Errorf("%w: %s: unknown index kind %q", ErrCorruptFile, path, doc.Index)
	}
	if err != nil {
		return nil, err
	}

	for _, ep := range doc.Episodes {
		if _, err := db.Store(ep); err != nil {
			return nil, fmt.Errorf("memdb: load %s: %w", path, err)
		}
	}
	return db, nil
}
