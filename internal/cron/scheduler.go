package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// scheduleParser accepts standard 5-field cron expressions
// (minute hour day-of-month month day-of-week).
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// entry is one registered job plus its run bookkeeping. The running
// mutex is held for the whole run; a tick that cannot take it is
// counted and dropped.
type entry struct {
	job     Job
	running sync.Mutex
	runs    atomic.Int64
	skips   atomic.Int64
}

// Scheduler runs maintenance jobs on cron schedules. Overlapping ticks
// of the same job are skipped, so a slow checkpoint or prune pass never
// stacks on itself.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	cron    *cron.Cron
	cancel  context.CancelFunc
	logger  *slog.Logger
}

// NewScheduler creates an empty scheduler. Jobs are registered with
// RegisterJob before Start.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// RegisterJob adds a job. Names must be unique; registering after Start
// does not affect the running schedule.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	s.entries[name] = &entry{job: j}
	s.order = append(s.order, name)
	return nil
}

// Start validates every schedule expression and begins ticking.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.cron = cron.New(cron.WithParser(scheduleParser))
	for _, name := range s.order {
		e := s.entries[name]
		if _, err := s.cron.AddFunc(e.job.Schedule(), s.tick(ctx, name, e)); err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
		}
	}

	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.order))
	return nil
}

// tick returns the closure the cron library fires for one job.
func (s *Scheduler) tick(ctx context.Context, name string, e *entry) func() {
	return func() {
		if !e.running.TryLock() {
			e.skips.Add(1)
			s.logger.Warn("cron: job still running, skipping tick", "job", name)
			return
		}
		defer e.running.Unlock()

		e.runs.Add(1)
		s.logger.Debug("cron: job started", "job", name)
		if err := e.job.Run(ctx); err != nil {
			s.logger.Error("cron: job failed", "job", name, "error", err)
			return
		}
		s.logger.Debug("cron: job completed", "job", name)
	}
}

// Stop cancels the job context and waits for in-flight runs, honoring
// the deadline on ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron == nil {
		return nil
	}

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		return fmt.Errorf("cron: stop: %w", ctx.Err())
	}

	var runs, skips int64
	for _, e := range s.entries {
		runs += e.runs.Load()
		skips += e.skips.Load()
	}
	s.logger.Info("cron: scheduler stopped", "runs", runs, "skipped", skips)
	return nil
}
