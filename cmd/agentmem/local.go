package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/flemzord/agentmem/internal/config"
	"github.com/flemzord/agentmem/internal/console"
	"github.com/flemzord/agentmem/internal/mcp"
	"github.com/flemzord/agentmem/internal/tenant"
	"github.com/flemzord/agentmem/pkg/app"
	"github.com/flemzord/agentmem/pkg/memdb"
	"github.com/spf13/cobra"
)

func consoleCmd() *cobra.Command {
	var (
		path string
		dim  int
	)

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive local memory notebook",
		Long: `Console runs a small interactive notebook over a local store: remember
free-text notes, recall them by similarity, and prune old ones. The store
is saved to --path after every change, so notes survive between sessions.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			logger := app.NewLogger(config.LogConfig{Level: "warn"})
			c, err := console.New(console.Options{
				Path:   path,
				Dim:    dim,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			return c.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&path, "path", filepath.Join(app.DefaultDataDir(), "console.json"), "Snapshot file for the console store")
	cmd.Flags().IntVar(&dim, "dim", 0, "Embedding dimension for a fresh store (default 16)")
	return cmd
}

func mcpCmd() *cobra.Command {
	var (
		dim         int
		index       string
		maxElements int
		dataDir     string
		checkpoint  bool
		tenantID    string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve memory tools over MCP stdio",
		Long: `MCP serves the store as Model Context Protocol tools on stdin/stdout,
for use as a tool server in agent runtimes. With --data-dir the store is
disk-backed and survives restarts; otherwise it lives in memory for the
lifetime of the process. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind := memdb.Kind(index)
			if kind != memdb.KindHNSW && kind != memdb.KindExact {
				return fmt.Errorf("unknown index kind %q: want hnsw or exact", index)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			logger := app.NewLogger(config.LogConfig{Level: logLevel})
			set := tenant.NewSet(config.StoreConfig{
				Dim:         dim,
				Index:       index,
				MaxElements: maxElements,
				DataDir:     dataDir,
				Checkpoint:  checkpoint,
			}, logger)

			backend, err := set.GetOrCreate(tenantID)
			if err != nil {
				return err
			}

			srv := mcp.New(mcp.Options{
				Store:   backend,
				Logger:  logger,
				Version: version,
			})
			err = srv.Run(ctx, os.Stdin, os.Stdout)
			return errors.Join(err, set.CloseAll())
		},
	}

	cmd.Flags().IntVar(&dim, "dim", 384, "Embedding dimension")
	cmd.Flags().StringVar(&index, "index", "hnsw", "Index kind: hnsw or exact")
	cmd.Flags().IntVar(&maxElements, "max-elements", memdb.DefaultMaxElements, "HNSW element capacity")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for a disk-backed store (empty keeps it in memory)")
	cmd.Flags().BoolVar(&checkpoint, "checkpoint", false, "Write exact-index checkpoints (disk stores only)")
	cmd.Flags().StringVar(&tenantID, "tenant", "local", "Store name under --data-dir")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	return cmd
}
