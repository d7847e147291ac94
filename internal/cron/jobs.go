package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/agentmem/internal/audit"
	"github.com/flemzord/agentmem/internal/tenant"
)

// EventFunc publishes one maintenance event, typically onto the
// gateway's /v1/events stream. A nil EventFunc disables publishing.
type EventFunc func(tenantID, op string, count int)

// CheckpointJob writes checkpoints for disk-backed tenant stores so
// reopening them can skip log replay. Checkpoint is a no-op on
// in-memory tenants, so the job is safe to run against a mixed set; it
// is only worth scheduling when a data directory is configured.
type CheckpointJob struct {
	Tenants      *tenant.Set
	Logger       *slog.Logger
	Events       EventFunc
	ScheduleExpr string // empty = default "*/10 * * * *"
}

// Compile-time interface check.
var _ Job = (*CheckpointJob)(nil)

// Name implements Job.
func (j *CheckpointJob) Name() string { return "checkpoint" }

// Schedule implements Job.
func (j *CheckpointJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

// Run checkpoints every tenant store. A failing tenant does not stop
// the pass; all failures are joined into the returned error.
func (j *CheckpointJob) Run(ctx context.Context) error {
	var errs []error
	var done int
	for _, id := range j.Tenants.IDs() {
		if ctx.Err() != nil {
			return fmt.Errorf("cron: checkpoint cancelled: %w", ctx.Err())
		}
		b, ok := j.Tenants.Lookup(id)
		if !ok {
			continue
		}
		if err := b.Checkpoint(); err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", id, err))
			continue
		}
		if j.Events != nil {
			j.Events(id, audit.OpCheckpoint, 0)
		}
		done++
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("cron: checkpoint: %w", err)
	}
	j.Logger.Debug("cron: checkpoint pass complete", "tenants", done)
	return nil
}

// RetentionJob prunes old episodes from every tenant store. With
// MaxAge set it removes episodes recorded before now-MaxAge; with
// Keep set it trims each tenant to its Keep newest episodes. Both
// may be active; the age pass runs first. Episodes without a
// timestamp are never pruned by age.
type RetentionJob struct {
	Tenants      *tenant.Set
	MaxAge       time.Duration // 0 = no age-based pruning
	Keep         int           // 0 = no count-based pruning
	Logger       *slog.Logger
	Events       EventFunc
	ScheduleExpr string // empty = default "0 * * * *"
}

// Compile-time interface check.
var _ Job = (*RetentionJob)(nil)

// Name implements Job.
func (j *RetentionJob) Name() string { return "retention" }

// Schedule implements Job.
func (j *RetentionJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run applies the configured retention passes to every tenant.
func (j *RetentionJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.MaxAge).UnixMilli()

	var errs []error
	var removed int
	for _, id := range j.Tenants.IDs() {
		if ctx.Err() != nil {
			return fmt.Errorf("cron: retention cancelled: %w", ctx.Err())
		}
		b, ok := j.Tenants.Lookup(id)
		if !ok {
			continue
		}
		if j.MaxAge > 0 {
			n, err := b.PruneOlderThan(cutoff)
			if err != nil {
				errs = append(errs, fmt.Errorf("tenant %s: %w", id, err))
				continue
			}
			j.publish(id, audit.OpPruneOlderThan, n)
			removed += n
		}
		if j.Keep > 0 {
			n, err := b.PruneKeepNewest(j.Keep)
			if err != nil {
				errs = append(errs, fmt.Errorf("tenant %s: %w", id, err))
				continue
			}
			j.publish(id, audit.OpPruneKeepNewest, n)
			removed += n
		}
	}
	if removed > 0 {
		j.Logger.Info("cron: pruned episodes", "count", removed)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("cron: retention: %w", err)
	}
	return nil
}

// publish emits a prune event when the pass removed anything.
func (j *RetentionJob) publish(tenantID, op string, removed int) {
	if j.Events != nil && removed > 0 {
		j.Events(tenantID, op, removed)
	}
}
