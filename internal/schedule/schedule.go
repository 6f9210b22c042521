// Package schedule runs a job on a cron expression.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is invoked on every tick with the scheduler's context.
type Job func(ctx context.Context)

type Scheduler struct {
	cron   *cron.Cron
	sched  cron.Schedule
	job    Job
	logger *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New parses expr (standard five-field syntax or a descriptor such as
// "@hourly" or "@every 15m") and returns a stopped Scheduler.
func New(expr string, loc *time.Location, job Job, logger *slog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}

	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sched:  sched,
		job:    job,
		logger: logger.With("component", "schedule"),
	}
	s.cron.Schedule(sched, cron.FuncJob(s.tick))
	return s, nil
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	s.logger.Debug("tick")
	s.job(ctx)
}

// Start begins firing the job. Cancelling ctx stops further ticks from
// reaching the job.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("schedule started", "next", s.Next(time.Now()))
}

// Stop halts the scheduler and waits for a running job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}

// Next reports when the job will next fire after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.sched.Next(t.In(s.cron.Location()))
}
