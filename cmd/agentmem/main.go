// Package main is the entry point for the agentmem CLI.
package main

import (
	"fmt"
	"os"

	"github.com/flemzord/agentmem/internal/config"
	"github.com/flemzord/agentmem/pkg/app"
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
	root := &cobra.Command{
		Use:           "agentmem",
		Short:         "Embedding-indexed episodic memory for agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		versionCmd(),
		serveCmd(),
		configCmd(),
		consoleCmd(),
		mcpCmd(),
		serviceCmd(),
		pruneCmd(),
		auditCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print agentmem version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("agentmem %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the memory server with the configured tenants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			return app.Run(app.RunParams{
				ConfigPath: cfgPath,
				Version:    version,
				Commit:     commit,
				Date:       date,
			})
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			tenants := config.Tenants(cfg)
			store := "in-memory"
			if cfg.Store.DataDir != "" {
				store = cfg.Store.DataDir
			}
			fmt.Printf("Configuration OK (%d tenants, dim %d, %s index, store %s)\n",
				len(tenants), cfg.Store.Dim, cfg.Store.Index, store)
			for _, id := range tenants {
				fmt.Printf("  %s\n", id)
			}
			return nil
		},
	})
	return cmd
}

// loadConfig resolves, loads, and validates the configuration for
// commands that operate outside the server process.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		resolved, err := app.ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
