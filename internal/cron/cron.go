// Package cron schedules the server's background maintenance: periodic
// disk-store checkpoints and episode retention pruning over the tenant
// set.
package cron

import "context"

// Job is one schedulable maintenance task.
type Job interface {
	// Name identifies the job in logs and must be unique per scheduler.
	Name() string

	// Schedule returns a 5-field cron expression, e.g. "*/10 * * * *".
	Schedule() string

	// Run does one pass. The context is cancelled when the scheduler
	// stops; long passes should check it between tenants.
	Run(ctx context.Context) error
}
