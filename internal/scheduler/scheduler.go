// Package scheduler runs the periodic crawl of all employers on a cron spec.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"jobvyne-crawler/internal/logger"
)

type Task func(ctx context.Context) error

// Scheduler wraps robfig/cron. A tick that fires while the previous cycle is
// still running is skipped.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	name    string
	task    Task
	log     logger.Logger
	running atomic.Bool
	skipped atomic.Int64
}

// New validates spec ("@every 6h", "0 */4 * * *") and returns a stopped
// scheduler.
func New(spec, name string, task Task, log logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return &Scheduler{
		cron: cron.New(),
		spec: spec,
		name: name,
		task: task,
		log:  logger.Component(log, "scheduler").With(logger.String("task", name)),
	}, nil
}

// Start registers the task and starts the cron loop. With runNow the first
// cycle starts immediately instead of waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context, runNow bool) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.log.Info("cron started", logger.String("spec", s.spec))

	if runNow {
		go s.tick(ctx)
	}
	return nil
}

// Stop stops scheduling and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("cron stopped")
}

// Skipped counts ticks dropped because a cycle was still running.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.log.Warn("previous cycle still running, tick skipped")
		return
	}
	defer s.running.Store(false)

	if err := s.task(ctx); err != nil {
		s.log.Error("cycle failed", logger.Error(err))
	}
}
