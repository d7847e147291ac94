package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/flemzord/agentmem/internal/audit"
	"github.com/flemzord/agentmem/internal/config"
	"github.com/flemzord/agentmem/internal/tenant"
	"github.com/flemzord/agentmem/pkg/app"
	"github.com/spf13/cobra"
)

func pruneCmd() *cobra.Command {
	var (
		tenantID  string
		olderThan time.Duration
		keep      int
		keepBest  int
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Prune episodes in disk-backed tenant stores",
		Long: `Prune applies retention policies to disk-backed tenant stores while the
server is stopped. Policies may be combined; age runs first, then count,
then reward. Tenants with no stored data are skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 && keep <= 0 && keepBest <= 0 {
				return fmt.Errorf("nothing to do: pass --older-than, --keep, or --keep-best")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Store.DataDir == "" {
				return fmt.Errorf("prune needs a disk-backed store: set store.data_dir")
			}

			logger := app.NewRedactedLogger(cfg.Log, config.Secrets(cfg)...)
			set := tenant.NewSet(cfg.Store, logger)
			defer func() { _ = set.CloseAll() }()

			ids := config.Tenants(cfg)
			if tenantID != "" {
				ids = []string{tenantID}
			}

			total := 0
			for _, id := range ids {
				b, ok, err := set.Resolve(id)
				if err != nil {
					return fmt.Errorf("tenant %s: %w", id, err)
				}
				if !ok {
					fmt.Printf("  %s: no data\n", id)
					continue
				}

				removed := 0
				if olderThan > 0 {
					cutoff := time.Now().Add(-olderThan).UnixMilli()
					n, err := b.PruneOlderThan(cutoff)
					if err != nil {
						return fmt.Errorf("tenant %s: %w", id, err)
					}
					removed += n
				}
				if keep > 0 {
					n, err := b.PruneKeepNewest(keep)
					if err != nil {
						return fmt.Errorf("tenant %s: %w", id, err)
					}
					removed += n
				}
				if keepBest > 0 {
					n, err := b.PruneKeepHighestReward(keepBest)
					if err != nil {
						return fmt.Errorf("tenant %s: %w", id, err)
					}
					removed += n
				}

				fmt.Printf("  %s: removed %d, kept %d\n", id, removed, b.Len())
				total += removed
			}

			fmt.Printf("Pruned %d episodes\n", total)
			return nil
		},
	}

	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Prune only this tenant (default: all configured)")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Remove episodes older than this age (e.g. 720h)")
	cmd.Flags().IntVar(&keep, "keep", 0, "Keep only the N newest episodes per tenant")
	cmd.Flags().IntVar(&keepBest, "keep-best", 0, "Keep only the N highest-reward episodes per tenant")
	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file")

	var (
		tenantID string
		n        int
	)
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print recent audit entries as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Audit.Backend != audit.BackendSQLite {
				return fmt.Errorf("audit tail needs the sqlite backend, config has %q", cfg.Audit.Backend)
			}

			sink, err := audit.OpenSQLite(cfg.Audit.Path)
			if err != nil {
				return err
			}
			defer func() { _ = sink.Close() }()

			entries, err := sink.Recent(cmd.Context(), tenantID, n)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			for _, e := range entries {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	tail.Flags().StringVar(&tenantID, "tenant", "", "Show only this tenant's entries (default: all)")
	tail.Flags().IntVar(&n, "n", 20, "Number of entries to show")

	cmd.AddCommand(tail)
	return cmd
}
