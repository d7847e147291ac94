package main

import (
	"fmt"
	"io"
	"math/rand"
	"sort"
	"time"

	"github.com/flemzord/agentmem/pkg/episode"
	"github.com/flemzord/agentmem/pkg/memdb"
)

// benchConfig holds the sweep parameters.
type benchConfig struct {
	Dims    []int
	Sizes   []int
	Queries int
	TopK    int
	Kind    memdb.Kind
	Seed    int64
	Recall  bool
	Out     io.Writer
}

// runBench executes the full sweep: one insert row and one query row
// per (dim, n) pair, plus recall rows when enabled.
func runBench(cfg benchConfig) error {
	fmt.Fprintln(cfg.Out, "# insert throughput (episodes/sec) and elapsed (s)")
	for _, dim := range cfg.Dims {
		for _, n := range cfg.Sizes {
			if err := benchInserts(cfg, dim, n); err != nil {
				return err
			}
		}
	}

	fmt.Fprintln(cfg.Out, "# query latency (ms): avg, p50, p95")
	for _, dim := range cfg.Dims {
		for _, n := range cfg.Sizes {
			if err := benchQueries(cfg, dim, n); err != nil {
				return err
			}
		}
	}

	if cfg.Recall {
		fmt.Fprintf(cfg.Out, "# hnsw recall@%d against the exact index\n", cfg.TopK)
		for _, dim := range cfg.Dims {
			for _, n := range cfg.Sizes {
				if err := benchRecall(cfg, dim, n); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// newDB builds a store of the requested kind with room for n inserts.
func newDB(kind memdb.Kind, dim, n int) (*memdb.DB, error) {
	if kind == memdb.KindExact {
		return memdb.NewExact(dim)
	}
	if n < memdb.DefaultMaxElements {
		n = memdb.DefaultMaxElements
	}
	return memdb.NewWithMaxElements(dim, n)
}

// benchInserts times storing n episodes, generation included, and
// prints an insert row.
func benchInserts(cfg benchConfig, dim, n int) error {
	db, err := newDB(cfg.Kind, dim, n)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	start := time.Now()
	for i := 0; i < n; i++ {
		if _, err := db.Store(syntheticEpisode(rng, i, dim)); err != nil {
			return err
		}
	}
	elapsed := time.Since(start).Seconds()

	fmt.Fprintf(cfg.Out, "insert,%d,%d,%.2f,%.4f\n", dim, n, float64(n)/elapsed, elapsed)
	return nil
}

// benchQueries fills a store with n episodes, then times cfg.Queries
// unfiltered similarity queries and prints a query row.
func benchQueries(cfg benchConfig, dim, n int) error {
	db, err := newDB(cfg.Kind, dim, n)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	for i := 0; i < n; i++ {
		if _, err := db.Store(syntheticEpisode(rng, i, dim)); err != nil {
			return err
		}
	}

	opts := memdb.QueryOptions{MinReward: -1, TopK: cfg.TopK}
	latencies := make([]float64, 0, cfg.Queries)
	for i := 0; i < cfg.Queries; i++ {
		vec := randomEmbedding(rng, dim)
		start := time.Now()
		if _, err := db.Query(vec, opts); err != nil {
			return err
		}
		latencies = append(latencies, time.Since(start).Seconds()*1000)
	}

	avg, p50, p95 := summarize(latencies)
	fmt.Fprintf(cfg.Out, "query,%d,%d,%.4f,%.4f,%.4f\n", dim, n, avg, p50, p95)
	return nil
}

// benchRecall stores the same n episodes in an exact and an HNSW index,
// runs cfg.Queries queries against both, and prints the fraction of
// exact results the HNSW index found.
func benchRecall(cfg benchConfig, dim, n int) error {
	exact, err := memdb.NewExact(dim)
	if err != nil {
		return err
	}
	approx, err := newDB(memdb.KindHNSW, dim, n)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	for i := 0; i < n; i++ {
		ep := syntheticEpisode(rng, i, dim)
		ep.ID = fmt.Sprintf("ep_%d", i)
		if _, err := exact.Store(ep); err != nil {
			return err
		}
		if _, err := approx.Store(ep); err != nil {
			return err
		}
	}

	opts := memdb.QueryOptions{MinReward: -1, TopK: cfg.TopK}
	var sum float64
	for i := 0; i < cfg.Queries; i++ {
		vec := randomEmbedding(rng, dim)
		want, err := exact.Query(vec, opts)
		if err != nil {
			return err
		}
		got, err := approx.Query(vec, opts)
		if err != nil {
			return err
		}
		if len(want) > 0 {
			sum += overlap(want, got) / float64(len(want))
		}
	}

	fmt.Fprintf(cfg.Out, "recall,%d,%d,%d,%.4f\n", dim, n, cfg.TopK, sum/float64(cfg.Queries))
	return nil
}

// syntheticEpisode builds episode i of a seeded run.
func syntheticEpisode(rng *rand.Rand, i, dim int) episode.Episode {
	return episode.New(fmt.Sprintf("t%d", i), randomEmbedding(rng, dim), rng.Float32())
}

// randomEmbedding draws a vector with components in [0, 1).
func randomEmbedding(rng *rand.Rand, dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = rng.Float32()
	}
	return vec
}

// summarize returns the mean, median, and 95th percentile of the
// latencies. The p95 index matches sorted[int(0.95*len)-1], clamped
// to the first element.
func summarize(latencies []float64) (avg, p50, p95 float64) {
	if len(latencies) == 0 {
		return 0, 0, 0
	}

	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	sort.Float64s(sorted)

	for _, l := range sorted {
		avg += l
	}
	avg /= float64(len(sorted))

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		p50 = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		p50 = sorted[mid]
	}

	idx := int(0.95*float64(len(sorted))) - 1
	if idx < 0 {
		idx = 0
	}
	p95 = sorted[idx]
	return avg, p50, p95
}

// overlap counts how many episodes in got also appear in want, by id.
func overlap(want, got []episode.Episode) float64 {
	ids := make(map[string]struct{}, len(want))
	for _, ep := range want {
		ids[ep.ID] = struct{}{}
	}
	hits := 0
	for _, ep := range got {
		if _, ok := ids[ep.ID]; ok {
			hits++
		}
	}
	return float64(hits)
}
