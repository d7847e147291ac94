// Package app provides the shared entry point for the agentmem binaries:
// load configuration, start the gateway and maintenance jobs, and run
// until shutdown. It also wraps the server as an OS service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/flemzord/agentmem/internal/audit"
	"github.com/flemzord/agentmem/internal/config"
	"github.com/flemzord/agentmem/internal/cron"
	"github.com/flemzord/agentmem/internal/gateway"
	"github.com/flemzord/agentmem/internal/redact"
	"github.com/flemzord/agentmem/internal/telemetry"
	"github.com/flemzord/agentmem/internal/tenant"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string
}

// Run loads configuration, starts the gateway and maintenance jobs, and
// blocks until a shutdown signal is received.
func Run(params RunParams) error {
	return run(params, nil)
}

// run is Run with an extra stop channel so the OS-service wrapper can
// request shutdown without a signal.
func run(params RunParams, stop <-chan struct{}) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := NewRedactedLogger(cfg.Log, config.Secrets(cfg)...)
	logger.Info("agentmem starting",
		"version", params.Version,
		"config", cfgPath,
		"dim", cfg.Store.Dim,
	)

	ctx := context.Background()

	provider, err := telemetry.Setup(ctx, cfg.Telemetry, params.Version, logger)
	if err != nil {
		return err
	}

	sink, err := audit.Open(cfg.Audit.Backend, cfg.Audit.Path)
	if err != nil {
		return err
	}

	tenants := tenant.NewSet(cfg.Store, logger)

	gw := gateway.New(gateway.Options{
		Config:       cfg.Server,
		Tenants:      tenants,
		Audit:        sink,
		AuditBackend: cfg.Audit.Backend,
		Logger:       logger,
	})
	if err := gw.Start(); err != nil {
		return err
	}

	scheduler, err := startJobs(cfg, tenants, gw, logger)
	if err != nil {
		stopCtx, cancel := context.WithTimeout(ctx, cfg.Server.ParsedShutdownTimeout())
		defer cancel()
		_ = gw.Stop(stopCtx)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case <-stop:
		logger.Info("service stop requested")
	}

	stopCtx, cancel := context.WithTimeout(ctx, cfg.Server.ParsedShutdownTimeout())
	defer cancel()

	var errs []error
	if scheduler != nil {
		errs = append(errs, scheduler.Stop(stopCtx))
	}
	errs = append(errs, gw.Stop(stopCtx))
	errs = append(errs, tenants.CloseAll())
	errs = append(errs, sink.Close())
	errs = append(errs, provider.Shutdown(stopCtx))

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// startJobs registers and starts the configured maintenance jobs.
// Job activity lands on the gateway's event stream alongside the
// client-driven operations. Returns a nil scheduler when no job is
// configured.
func startJobs(cfg *config.Config, tenants *tenant.Set, gw *gateway.Gateway, logger *slog.Logger) (*cron.Scheduler, error) {
	events := func(tenantID, op string, count int) {
		gw.Events().Publish(gateway.Event{TenantID: tenantID, Op: op, Count: count})
	}

	var jobs []cron.Job
	if cfg.Jobs.Checkpoint != "" && cfg.Store.DataDir != "" {
		jobs = append(jobs, &cron.CheckpointJob{
			Tenants:      tenants,
			Logger:       logger,
			Events:       events,
			ScheduleExpr: cfg.Jobs.Checkpoint,
		})
	}
	if cfg.Jobs.Retention != "" {
		jobs = append(jobs, &cron.RetentionJob{
			Tenants:      tenants,
			MaxAge:       cfg.Jobs.ParsedRetentionMaxAge(),
			Keep:         cfg.Jobs.RetentionKeep,
			Logger:       logger,
			Events:       events,
			ScheduleExpr: cfg.Jobs.Retention,
		})
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	s := cron.NewScheduler(logger)
	for _, j := range jobs {
		if err := s.RegisterJob(j); err != nil {
			return nil, err
		}
	}
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewLogger builds the process logger on stderr per the log config.
// stdout stays free for protocol use (the MCP server owns it).
func NewLogger(cfg config.LogConfig) *slog.Logger {
	return slog.New(newHandler(cfg))
}

// NewRedactedLogger is NewLogger with the given secret values masked
// in every record, so configured API keys never reach the log output.
func NewRedactedLogger(cfg config.LogConfig, secrets ...string) *slog.Logger {
	if len(secrets) == 0 {
		return NewLogger(cfg)
	}
	return slog.New(redact.NewHandler(newHandler(cfg), redact.New(secrets...)))
}

func newHandler(cfg config.LogConfig) slog.Handler {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/agentmem/agentmem.yaml →
// ~/.config/agentmem/agentmem.yaml → ./agentmem.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "agentmem", "agentmem.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "agentmem", "agentmem.yaml"))
	}

	candidates = append(candidates, "agentmem.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/agentmem if set, otherwise ~/.local/share/agentmem.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "agentmem")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "agentmem")
}
