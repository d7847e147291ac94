// Package crontest provides a configurable cron.Job double for tests
// that exercise the scheduler from outside the cron package.
package crontest

import (
	"context"
	"sync/atomic"

	"github.com/flemzord/agentmem/internal/cron"
)

// MockJob satisfies cron.Job. The zero value is usable: it reports the
// given name and schedule, counts runs, and returns Err from every run.
type MockJob struct {
	JobName     string
	JobSchedule string
	// Err is returned by Run. A nil Err means the run succeeds.
	Err error
	// OnRun, when set, is called on every run after the counter is
	// bumped; its error takes precedence over Err.
	OnRun func(ctx context.Context) error

	runs atomic.Int64
}

var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.JobName }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.JobSchedule }

// Run implements cron.Job.
func (m *MockJob) Run(ctx context.Context) error {
	m.runs.Add(1)
	if m.OnRun != nil {
		return m.OnRun(ctx)
	}
	return m.Err
}

// Runs returns how many times Run was called.
func (m *MockJob) Runs() int64 { return m.runs.Load() }
