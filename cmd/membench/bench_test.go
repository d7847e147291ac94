package main

import (
	"bytes"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/flemzord/agentmem/pkg/episode"
	"github.com/flemzord/agentmem/pkg/memdb"
)

func newRng(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name      string
		latencies []float64
		avg, p50  float64
		p95       float64
	}{
		{
			name:      "odd count",
			latencies: []float64{3, 1, 2},
			avg:       2, p50: 2, p95: 2, // int(0.95*3)-1 = 1
		},
		{
			name:      "even count",
			latencies: []float64{4, 1, 3, 2},
			avg:       2.5, p50: 2.5, p95: 3, // int(0.95*4)-1 = 2
		},
		{
			name:      "single element",
			latencies: []float64{7},
			avg:       7, p50: 7, p95: 7,
		},
		{
			name:      "twenty elements",
			latencies: []float64{20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1},
			avg:       10.5, p50: 10.5, p95: 19, // int(0.95*20)-1 = 18
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avg, p50, p95 := summarize(tt.latencies)
			if math.Abs(avg-tt.avg) > 1e-9 {
				t.Errorf("avg = %v, want %v", avg, tt.avg)
			}
			if math.Abs(p50-tt.p50) > 1e-9 {
				t.Errorf("p50 = %v, want %v", p50, tt.p50)
			}
			if math.Abs(p95-tt.p95) > 1e-9 {
				t.Errorf("p95 = %v, want %v", p95, tt.p95)
			}
		})
	}
}

func TestSummarize_Empty(t *testing.T) {
	avg, p50, p95 := summarize(nil)
	if avg != 0 || p50 != 0 || p95 != 0 {
		t.Errorf("summarize(nil) = %v, %v, %v, want zeros", avg, p50, p95)
	}
}

func TestSummarize_DoesNotReorderInput(t *testing.T) {
	latencies := []float64{3, 1, 2}
	summarize(latencies)
	if latencies[0] != 3 || latencies[1] != 1 || latencies[2] != 2 {
		t.Errorf("input reordered: %v", latencies)
	}
}

func TestOverlap(t *testing.T) {
	eps := func(ids ...string) []episode.Episode {
		out := make([]episode.Episode, len(ids))
		for i, id := range ids {
			out[i] = episode.Episode{ID: id}
		}
		return out
	}

	tests := []struct {
		name      string
		want, got []episode.Episode
		hits      float64
	}{
		{"full", eps("a", "b"), eps("b", "a"), 2},
		{"partial", eps("a", "b", "c"), eps("c", "x", "y"), 1},
		{"none", eps("a"), eps("b"), 0},
		{"empty got", eps("a"), nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if hits := overlap(tt.want, tt.got); hits != tt.hits {
				t.Errorf("overlap = %v, want %v", hits, tt.hits)
			}
		})
	}
}

func TestRandomEmbedding_Deterministic(t *testing.T) {
	a := randomEmbedding(newRng(42), 8)
	b := randomEmbedding(newRng(42), 8)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed diverged at %d: %v vs %v", i, a[i], b[i])
		}
		if a[i] < 0 || a[i] >= 1 {
			t.Fatalf("component %d = %v, want [0, 1)", i, a[i])
		}
	}

	c := randomEmbedding(newRng(43), 8)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical vectors")
	}
}

func TestNewDB_Kinds(t *testing.T) {
	exact, err := newDB(memdb.KindExact, 4, 100)
	if err != nil {
		t.Fatalf("newDB exact: %v", err)
	}
	if exact.Kind() != memdb.KindExact {
		t.Errorf("kind = %s, want exact", exact.Kind())
	}

	small, err := newDB(memdb.KindHNSW, 4, 100)
	if err != nil {
		t.Fatalf("newDB hnsw: %v", err)
	}
	if small.MaxElements() != memdb.DefaultMaxElements {
		t.Errorf("small hnsw capacity = %d, want %d", small.MaxElements(), memdb.DefaultMaxElements)
	}

	big, err := newDB(memdb.KindHNSW, 4, memdb.DefaultMaxElements+5)
	if err != nil {
		t.Fatalf("newDB big hnsw: %v", err)
	}
	if big.MaxElements() != memdb.DefaultMaxElements+5 {
		t.Errorf("big hnsw capacity = %d, want %d", big.MaxElements(), memdb.DefaultMaxElements+5)
	}
}

func TestRunBench_Output(t *testing.T) {
	var buf bytes.Buffer
	cfg := benchConfig{
		Dims:    []int{4, 8},
		Sizes:   []int{10},
		Queries: 5,
		TopK:    3,
		Kind:    memdb.KindExact,
		Seed:    42,
		Recall:  true,
		Out:     &buf,
	}
	if err := runBench(cfg); err != nil {
		t.Fatalf("runBench: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"insert,4,10,", "insert,8,10,",
		"query,4,10,", "query,8,10,",
		"recall,4,10,3,", "recall,8,10,3,",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if got := strings.Count(out, "#"); got != 3 {
		t.Errorf("header count = %d, want 3:\n%s", got, out)
	}
}

func TestBenchRecall_Values(t *testing.T) {
	var buf bytes.Buffer
	cfg := benchConfig{
		Queries: 10,
		TopK:    5,
		Seed:    1,
		Out:     &buf,
	}
	if err := benchRecall(cfg, 8, 50); err != nil {
		t.Fatalf("benchRecall: %v", err)
	}

	// recall,8,50,5,<value>
	row := strings.TrimSpace(buf.String())
	fields := strings.Split(row, ",")
	if len(fields) != 5 {
		t.Fatalf("row %q has %d fields, want 5", row, len(fields))
	}
	recall, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		t.Fatalf("recall field %q: %v", fields[4], err)
	}
	if recall < 0 || recall > 1 {
		t.Errorf("recall = %v, want within [0, 1]", recall)
	}
}
