package memdb

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flemzord/agentmem/pkg/episode"
)

// QueryOptions narrows a similarity query. The zero value of each field
// disables that filter; all configured filters must pass.
type QueryOptions struct {
	// MinReward drops episodes with a lower reward.
	MinReward float32

	// TopK caps the number of results. Zero yields an empty result,
	// negative is an error.
	TopK int

	// TagsAny passes episodes carrying at least one of these tags.
	TagsAny []string

	// TagsAll passes episodes carrying every one of these tags.
	TagsAll []string

	// TaskIDPrefix passes episodes whose task id starts with this prefix.
	TaskIDPrefix string

	// TimeAfter and TimeBefore bound the episode timestamp in unix
	// milliseconds, inclusive on both ends. Episodes without a timestamp
	// fail either bound.
	TimeAfter  *int64
	TimeBefore *int64

	// Source passes episodes whose source matches exactly.
	Source string

	// UserID passes episodes whose user id matches exactly.
	UserID string
}

// matches reports whether ep passes every configured filter.
func (o *QueryOptions) matches(ep *episode.Episode) bool {
	if ep.Reward < o.MinReward {
		return false
	}
	if len(o.TagsAny) > 0 && !anyTag(ep.Tags, o.TagsAny) {
		return false
	}
	if len(o.TagsAll) > 0 && !allTags(ep.Tags, o.TagsAll) {
		return false
	}
	if o.TaskIDPrefix != "" && !strings.HasPrefix(ep.TaskID, o.TaskIDPrefix) {
		return false
	}
	if o.TimeAfter != nil && (ep.Timestamp == nil || *ep.Timestamp < *o.TimeAfter) {
		return false
	}
	if o.TimeBefore != nil && (ep.Timestamp == nil || *ep.Timestamp > *o.TimeBefore) {
		return false
	}
	if o.Source != "" && ep.Source != o.Source {
		return false
	}
	if o.UserID != "" && ep.UserID != o.UserID {
		return false
	}
	return true
}

// filtered reports whether any filter beyond MinReward is set. Filtered
// queries over-fetch more aggressively from the approximate index.
func (o *QueryOptions) filtered() bool {
	return len(o.TagsAny) > 0 || len(o.TagsAll) > 0 || o.TaskIDPrefix != "" ||
		o.TimeAfter != nil || o.TimeBefore != nil || o.Source != "" || o.UserID != ""
}

func anyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func allTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type scoredRecord struct {
	dist float32
	rec  *record
}

// Query returns up to opts.TopK episodes nearest to vec that pass every
// filter, ordered by ascending L2 distance. Ties rank the higher reward
// first, then the earlier-inserted episode, so results are fully
// deterministic. An exact store considers every episode; an HNSW store
// fetches TopK times the over-fetch multiplier and may miss distant
// matches that heavy filtering would otherwise surface.
func (db *DB) Query(vec []float32, opts QueryOptions) ([]episode.Episode, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.queryLocked(vec, opts)
}

// QueryBatch runs one reward-filtered query per vector under a single read
// lock, so every result reflects the same snapshot of the store. The first
// failing vector aborts the batch.
func (db *DB) QueryBatch(vecs [][]float32, minReward float32, topK int) ([][]episode.Episode, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([][]episode.Episode, 0, len(vecs))
	for i, vec := range vecs {
		res, err := db.queryLocked(vec, QueryOptions{MinReward: minReward, TopK: topK})
		if err != nil {
			return nil, fmt.Errorf("memdb: batch query %d: %w", i, err)
		}
		out = append(out, res)
	}
	return out, nil
}

func (db *DB) queryLocked(vec []float32, opts QueryOptions) ([]episode.Episode, error) {
	if err := db.checkEmbedding(vec); err != nil {
		return nil, err
	}
	if opts.TopK < 0 {
		return nil, fmt.Errorf("%w: top k must not be negative, got %d", ErrInvalidArgument, opts.TopK)
	}
	if opts.TopK == 0 || len(db.recs) == 0 {
		return nil, nil
	}

	fetch := len(db.recs)
	if db.kind == KindHNSW && opts.TopK < len(db.recs) {
		mult := db.overFetch
		if mult <= 0 {
			mult = 2
			if opts.filtered() {
				mult = 4
			}
		}
		fetch = opts.TopK * mult
		if fetch > len(db.recs) {
			fetch = len(db.recs)
		}
	}

	cands := db.backend.Search(vec, fetch)
	scored := make([]scoredRecord, 0, len(cands))
	for _, c := range cands {
		rec, ok := db.recs[c.Key]
		if !ok {
			continue
		}
		if !opts.matches(&rec.ep) {
			continue
		}
		scored = append(scored, scoredRecord{dist: c.Distance, rec: rec})
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		if a.rec.ep.Reward != b.rec.ep.Reward {
			return a.rec.ep.Reward > b.rec.ep.Reward
		}
		return a.rec.seq < b.rec.seq
	})
	if len(scored) > opts.TopK {
		scored = scored[:opts.TopK]
	}

	out := make([]episode.Episode, len(scored))
	for i, s := range scored {
		out[i] = s.rec.ep.Clone()
	}
	return out, nil
}
