// Package audit records gateway operations to a configurable sink: a
// no-op sink, an append-only JSONL file, or a SQLite database backed by
// modernc.org/sqlite (pure Go, no CGO).
package audit

import (
	"context"
	"fmt"
)

// Operation names recorded by the gateway and the maintenance jobs.
const (
	OpStoreEpisode           = "store_episode"
	OpStoreEpisodes          = "store_episodes"
	OpQuery                  = "query"
	OpSave                   = "save"
	OpLoad                   = "load"
	OpPruneOlderThan         = "prune_older_than"
	OpPruneKeepNewest        = "prune_keep_newest"
	OpPruneKeepHighestReward = "prune_keep_highest_reward"
	OpCheckpoint             = "checkpoint"
)

// Supported sink backends.
const (
	BackendNone   = "none"
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// Entry is a single audit record. TS is filled by the sink when empty.
type Entry struct {
	TS           string `json:"ts"`
	TenantID     string `json:"tenant_id"`
	Op           string `json:"op"`
	TaskID       string `json:"task_id,omitempty"`
	EpisodeCount *int   `json:"episode_count,omitempty"`
	Path         string `json:"path,omitempty"`
}

// Sink persists audit entries. Implementations must be safe for
// concurrent use.
type Sink interface {
	Record(ctx context.Context, e Entry) error
	Close() error
}

// Count returns a pointer to n for Entry.EpisodeCount.
func Count(n int) *int { return &n }

// Open returns the sink for the given backend. The jsonl and sqlite
// backends require a path; an empty backend means none.
func Open(backend, path string) (Sink, error) {
	switch backend {
	case "", BackendNone:
		return NopSink{}, nil
	case BackendJSONL:
		return OpenJSONL(path)
	case BackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("audit: unknown backend %q", backend)
	}
}

// NopSink discards all entries.
type NopSink struct{}

var _ Sink = NopSink{}

// Record implements Sink.
func (NopSink) Record(context.Context, Entry) error { return nil }

// Close implements Sink.
func (NopSink) Close() error { return nil }
