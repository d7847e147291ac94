// Package main is a synthetic benchmark for the agentmem engine. It
// sweeps embedding dimensions and store sizes, reporting insert
// throughput and query latency as CSV rows, and can measure HNSW
// recall against the exact index.
package main

import (
	"fmt"
	"os"

	"github.com/flemzord/agentmem/pkg/memdb"
	"github.com/spf13/cobra"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		cfg   benchConfig
		index string
	)

	root := &cobra.Command{
		Use:   "membench",
		Short: "Synthetic benchmarks for the memory engine",
		Long: `Membench fills stores with seeded random episodes and prints one CSV row
per (dim, n) pair:

  insert,<dim>,<n>,<episodes/sec>,<elapsed s>
  query,<dim>,<n>,<avg ms>,<p50 ms>,<p95 ms>
  recall,<dim>,<n>,<k>,<recall@k>        (with --recall)

The same seed reproduces the same episodes and query vectors.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			kind := memdb.Kind(index)
			if kind != memdb.KindHNSW && kind != memdb.KindExact {
				return fmt.Errorf("unknown index kind %q: want hnsw or exact", index)
			}
			cfg.Kind = kind
			cfg.Out = os.Stdout
			return runBench(cfg)
		},
	}

	root.Flags().IntSliceVar(&cfg.Dims, "dim", []int{256, 768}, "Embedding dimensions to sweep")
	root.Flags().IntSliceVar(&cfg.Sizes, "n", []int{1000, 10000}, "Store sizes to sweep")
	root.Flags().IntVar(&cfg.Queries, "queries", 50, "Queries per latency run")
	root.Flags().IntVar(&cfg.TopK, "top-k", 5, "Results per query")
	root.Flags().StringVar(&index, "index", "hnsw", "Index kind: hnsw or exact")
	root.Flags().Int64Var(&cfg.Seed, "seed", 42, "Seed for the episode generator")
	root.Flags().BoolVar(&cfg.Recall, "recall", false, "Also measure HNSW recall against the exact index")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print membench version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("membench %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})
	return root
}
