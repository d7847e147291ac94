package memdb

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func mustOpenDisk(t *testing.T, dir string, opts DiskOptions) *DiskStore {
	t.Helper()
	ds, err := OpenDisk(dir, opts)
	if err != nil {
		t.Fatalf("OpenDisk(%s) failed: %v", dir, err)
	}
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func logLineCount(t *testing.T, dir string) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, episodesLog))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	n := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func TestOpenDisk_CreatesLayout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ds := mustOpenDisk(t, dir, HNSWOptions(2, 100))

	data, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		t.Fatalf("meta.json was not created: %v", err)
	}
	var meta struct {
		Dim         int    `json:"dim"`
		IndexType   string `json:"index_type"`
		MaxElements int    `json:"max_elements"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatalf("meta.json is not valid JSON: %v", err)
	}
	if meta.Dim != 2 || meta.IndexType != "hnsw" || meta.MaxElements != 100 {
		t.Errorf("meta = %+v", meta)
	}

	if _, err := ds.Store(newEpisode("t", []float32{1, 0}, 0)); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if _, err := ds.Store(newEpisode("t", []float32{0, 1}, 0)); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if got := logLineCount(t, dir); got != 2 {
		t.Errorf("log has %d lines, want 2", got)
	}
}

func TestOpenDisk_InvalidOptions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := OpenDisk(dir, DiskOptions{Dim: 0}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("dim=0: got %v, want ErrInvalidArgument", err)
	}
	if _, err := OpenDisk(dir, DiskOptions{Dim: 2, Index: "quantum"}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("bad kind: got %v, want ErrInvalidArgument", err)
	}
}

func TestDiskStore_ReopenReplaysLog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ds, err := OpenDisk(dir, ExactOptions(2))
	if err != nil {
		t.Fatalf("OpenDisk failed: %v", err)
	}
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := ds.Store(newTimedEpisode("t", []float32{float32(i), 0}, float32(i), int64(i)))
		if err != nil {
			t.Fatalf("Store failed: %v", err)
		}
		ids = append(ids, id)
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := mustOpenDisk(t, dir, ExactOptions(2))
	if reopened.Len() != 3 {
		t.Fatalf("Len() = %d after reopen, want 3", reopened.Len())
	}
	for i, id := range ids {
		ep, err := reopened.Get(id)
		if err != nil {
			t.Fatalf("Get(%q) failed: %v", id, err)
		}
		if ep.Reward != float32(i) {
			t.Errorf("episode %d: reward = %v, want %v", i, ep.Reward, float32(i))
		}
	}

	res, err := reopened.Query([]float32{2, 0}, QueryOptions{TopK: 1})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(res) != 1 || res[0].ID != ids[2] {
		t.Errorf("query after reopen returned the wrong episode")
	}
}

func TestDiskStore_Checkpoint(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ds, err := OpenDisk(dir, ExactCheckpointOptions(2))
	if err != nil {
		t.Fatalf("OpenDisk failed: %v", err)
	}
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := ds.Store(newEpisode("t", []float32{float32(i), 1}, 0))
		if err != nil {
			t.Fatalf("Store failed: %v", err)
		}
		ids = append(ids, id)
	}
	if err := ds.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, checkpointFile)); err != nil {
		t.Fatalf("checkpoint file missing: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	var meta struct {
		CheckpointLineCount *int `json:"checkpoint_line_count"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatalf("parse meta: %v", err)
	}
	if meta.CheckpointLineCount == nil || *meta.CheckpointLineCount != 3 {
		t.Fatalf("checkpoint_line_count = %v, want 3", meta.CheckpointLineCount)
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopen restores from the checkpoint: same episodes, same answers.
	reopened := mustOpenDisk(t, dir, ExactCheckpointOptions(2))
	if reopened.Len() != 3 {
		t.Fatalf("Len() = %d after checkpoint restore, want 3", reopened.Len())
	}
	res, err := reopened.Query([]float32{1, 1}, QueryOptions{TopK: 1})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(res) != 1 || res[0].ID != ids[1] {
		t.Errorf("checkpoint restore returned the wrong episode")
	}
}

func TestDiskStore_StaleCheckpointFallsBackToReplay(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ds, err := OpenDisk(dir, ExactCheckpointOptions(2))
	if err != nil {
		t.Fatalf("OpenDisk failed: %v", err)
	}
	if _, err := ds.Store(newEpisode("t", []float32{1, 0}, 0)); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := ds.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	// A write after the checkpoint makes the line count disagree, so the
	// next open must replay the full log instead.
	late, err := ds.Store(newEpisode("late", []float32{0, 1}, 0.9))
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := mustOpenDisk(t, dir, ExactCheckpointOptions(2))
	if reopened.Len() != 2 {
		t.Fatalf("Len() = %d after reopen, want 2", reopened.Len())
	}
	if _, err := reopened.Get(late); err != nil {
		t.Errorf("post-checkpoint episode lost on reopen: %v", err)
	}
}

func TestDiskStore_PruneCompactsLog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ds, err := OpenDisk(dir, ExactCheckpointOptions(2))
	if err != nil {
		t.Fatalf("OpenDisk failed: %v", err)
	}
	keep := make([]string, 0, 2)
	for i := 0; i < 4; i++ {
		id, err := ds.Store(newTimedEpisode("t", []float32{float32(i), 0}, 0, int64(i*100)))
		if err != nil {
			t.Fatalf("Store failed: %v", err)
		}
		if i >= 2 {
			keep = append(keep, id)
		}
	}
	if err := ds.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	removed, err := ds.PruneOlderThan(200)
	if err != nil {
		t.Fatalf("PruneOlderThan failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	// The log now holds exactly the survivors and the checkpoint is gone.
	if got := logLineCount(t, dir); got != 2 {
		t.Errorf("log has %d lines after compaction, want 2", got)
	}
	if _, err := os.Stat(filepath.Join(dir, checkpointFile)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("checkpoint should be removed after prune, stat: %v", err)
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := mustOpenDisk(t, dir, ExactCheckpointOptions(2))
	if reopened.Len() != 2 {
		t.Fatalf("Len() = %d after reopen, want 2", reopened.Len())
	}
	for _, id := range keep {
		if _, err := reopened.Get(id); err != nil {
			t.Errorf("survivor %q missing after reopen: %v", id, err)
		}
	}
}

func TestDiskStore_PruneKeepPolicies(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ds := mustOpenDisk(t, dir, ExactOptions(2))
	for i := 0; i < 5; i++ {
		_, err := ds.Store(newTimedEpisode("t", []float32{float32(i), 0}, float32(i), int64(i)))
		if err != nil {
			t.Fatalf("Store failed: %v", err)
		}
	}

	if removed, err := ds.PruneKeepNewest(3); err != nil || removed != 2 {
		t.Fatalf("PruneKeepNewest: removed=%d err=%v, want 2, nil", removed, err)
	}
	if removed, err := ds.PruneKeepHighestReward(1); err != nil || removed != 2 {
		t.Fatalf("PruneKeepHighestReward: removed=%d err=%v, want 2, nil", removed, err)
	}
	if got := logLineCount(t, dir); got != 1 {
		t.Errorf("log has %d lines, want 1", got)
	}

	eps := ds.Episodes()
	if len(eps) != 1 || eps[0].Reward != 4 {
		t.Errorf("survivor = %+v, want the reward-4 episode", eps)
	}
}

func TestOpenDisk_DimensionMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ds, err := OpenDisk(dir, ExactOptions(3))
	if err != nil {
		t.Fatalf("OpenDisk failed: %v", err)
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, err = OpenDisk(dir, ExactOptions(4))
	var dimErr *DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("got %v, want *DimensionError", err)
	}
	if dimErr.Expected != 3 || dimErr.Got != 4 {
		t.Errorf("DimensionError = {%d, %d}, want {3, 4}", dimErr.Expected, dimErr.Got)
	}
}

func TestOpenDisk_MetaDecidesIndexKind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ds, err := OpenDisk(dir, ExactOptions(2))
	if err != nil {
		t.Fatalf("OpenDisk failed: %v", err)
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Asking for HNSW on an existing exact directory keeps the exact index.
	reopened := mustOpenDisk(t, dir, HNSWOptions(2, 100))
	if reopened.Kind() != KindExact {
		t.Errorf("Kind() = %q, want %q", reopened.Kind(), KindExact)
	}
}

func TestDiskStore_RejectedStoreLeavesLogUntouched(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ds := mustOpenDisk(t, dir, ExactOptions(2))
	if _, err := ds.Store(newEpisode("t", []float32{1, 0}, 0)); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	var dimErr *DimensionError
	if _, err := ds.Store(newEpisode("t", []float32{1, 2, 3}, 0)); !errors.As(err, &dimErr) {
		t.Fatalf("got %v, want *DimensionError", err)
	}

	if ds.Len() != 1 {
		t.Errorf("Len() = %d, want 1", ds.Len())
	}
	if got := logLineCount(t, dir); got != 1 {
		t.Errorf("log has %d lines, want 1", got)
	}
}

func TestDiskStore_CorruptLogFailsOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ds, err := OpenDisk(dir, ExactOptions(2))
	if err != nil {
		t.Fatalf("OpenDisk failed: %v", err)
	}
	if _, err := ds.Store(newEpisode("t", []float32{1, 0}, 0)); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, episodesLog), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := f.WriteString("{truncated\n"); err != nil {
		t.Fatalf("write log: %v", err)
	}
	f.Close()

	if _, err := OpenDisk(dir, ExactOptions(2)); !errors.Is(err, ErrCorruptFile) {
		t.Errorf("got %v, want ErrCorruptFile", err)
	}
}
