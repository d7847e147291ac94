// Package episode defines the data contract between callers and the memory
// engine: the Episode record, its optional step trajectory, and the JSON wire
// format shared by the file store, the disk log, and the HTTP API.
package episode

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Step is one action/observation pair inside an episode trajectory.
type Step struct {
	// Index is the 0-based position of the step within the trajectory.
	Index uint32 `json:"index"`
	// Action taken by the agent.
	Action string `json:"action"`
	// Observation received after the action.
	Observation string `json:"observation"`
	// StepReward is the reward attributed to this single step.
	StepReward float32 `json:"step_reward"`
}

// Episode is one recorded agent experience. The embedding is the similarity
// key; everything else is filterable or pass-through payload.
//
// Metadata is opaque to the engine: it is stored and returned byte-for-byte
// and never inspected.
type Episode struct {
	// ID is a UUID v4. Assigned by New or by the store at insertion when empty.
	ID string `json:"id"`
	// TaskID is a caller-defined label. Not unique; prefix-filterable.
	TaskID string `json:"task_id"`
	// Embedding is the state embedding vector. Its length must equal the
	// owning store's dimension.
	Embedding []float32 `json:"state_embedding"`
	// Reward is the scalar outcome of the episode.
	Reward float32 `json:"reward"`
	// Metadata carries arbitrary caller JSON.
	Metadata json.RawMessage `json:"metadata,omitempty"`
	// Steps optionally records the trajectory that produced the episode.
	Steps []Step `json:"steps,omitempty"`
	// Timestamp is Unix milliseconds. Nil means "no timestamp": such
	// episodes are never evicted by age-based pruning and fail time filters.
	Timestamp *int64 `json:"timestamp,omitempty"`
	// Tags enable tags_any / tags_all filtering.
	Tags []string `json:"tags,omitempty"`
	// Source identifies the producer (e.g. "api", "cli").
	Source string `json:"source,omitempty"`
	// UserID scopes the episode to a user for filtered retrieval.
	UserID string `json:"user_id,omitempty"`
}

// New creates an episode with a fresh UUID and no optional fields set.
func New(taskID string, embedding []float32, reward float32) Episode {
	return Episode{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Embedding: embedding,
		Reward:    reward,
	}
}

// HasTimestamp reports whether the episode carries a timestamp.
func (e *Episode) HasTimestamp() bool {
	return e.Timestamp != nil
}

// TimestampOr returns the timestamp, or def when none is set.
func (e *Episode) TimestampOr(def int64) int64 {
	if e.Timestamp == nil {
		return def
	}
	return *e.Timestamp
}

// SetTimestamp sets the timestamp to the given Unix-millisecond value.
func (e *Episode) SetTimestamp(ms int64) {
	e.Timestamp = &ms
}

// Clone returns a deep copy. The store clones on insert and on query so that
// callers can never alias engine-owned slices.
func (e Episode) Clone() Episode {
	out := e
	if e.Embedding != nil {
		out.Embedding = make([]float32, len(e.Embedding))
		copy(out.Embedding, e.Embedding)
	}
	if e.Tags != nil {
		out.Tags = make([]string, len(e.Tags))
		copy(out.Tags, e.Tags)
	}
	if e.Steps != nil {
		out.Steps = make([]Step, len(e.Steps))
		copy(out.Steps, e.Steps)
	}
	if e.Metadata != nil {
		out.Metadata = make(json.RawMessage, len(e.Metadata))
		copy(out.Metadata, e.Metadata)
	}
	if e.Timestamp != nil {
		ts := *e.Timestamp
		out.Timestamp = &ts
	}
	return out
}

// NowMillis returns the current time as Unix milliseconds, the unit used by
// Episode.Timestamp and the time filters.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
