package memdb

import (
	"fmt"
	"math"
	"sort"
)

// PruneOlderThan removes every episode whose timestamp is set and earlier
// than cutoffMs (unix milliseconds). Episodes without a timestamp are never
// evicted by age. Returns the number removed. The index is rebuilt under
// the write lock, so queries never observe a half-pruned store.
func (db *DB) PruneOlderThan(cutoffMs int64) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	kept := make([]*record, 0, len(db.recs))
	for _, r := range db.recs {
		if r.ep.Timestamp == nil || *r.ep.Timestamp >= cutoffMs {
			kept = append(kept, r)
		}
	}
	removed := len(db.recs) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	db.rebuildLocked(kept)
	return removed, nil
}

// PruneKeepNewest keeps the n most recent episodes by timestamp and removes
// the rest. Episodes without a timestamp rank as oldest; equal timestamps
// keep the earlier-inserted episode. Keeping at least as many episodes as
// the store holds removes nothing.
func (db *DB) PruneKeepNewest(n int) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if n < 0 {
		return 0, fmt.Errorf("%w: keep count must not be negative, got %d", ErrInvalidArgument, n)
	}
	if len(db.recs) <= n {
		return 0, nil
	}

	recs := db.recordsLocked()
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		ta, tb := a.ep.TimestampOr(math.MinInt64), b.ep.TimestampOr(math.MinInt64)
		if ta != tb {
			return ta > tb
		}
		return a.seq < b.seq
	})

	removed := len(recs) - n
	db.rebuildLocked(recs[:n])
	return removed, nil
}

// PruneKeepHighestReward keeps the n episodes with the highest reward and
// removes the rest. Equal rewards keep the newer timestamp (none ranks as
// oldest), then the earlier-inserted episode. Keeping at least as many
// episodes as the store holds removes nothing.
func (db *DB) PruneKeepHighestReward(n int) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if n < 0 {
		return 0, fmt.Errorf("%w: keep count must not be negative, got %d", ErrInvalidArgument, n)
	}
	if len(db.recs) <= n {
		return 0, nil
	}

	recs := db.recordsLocked()
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.ep.Reward != b.ep.Reward {
			return a.ep.Reward > b.ep.Reward
		}
		ta, tb := a.ep.TimestampOr(math.MinInt64), b.ep.TimestampOr(math.MinInt64)
		if ta != tb {
			return ta > tb
		}
		return a.seq < b.seq
	})

	removed := len(recs) - n
	db.rebuildLocked(recs[:n])
	return removed, nil
}
