// Package scheduler triggers check cycles on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazz-dev/doiwatch/internal/monitor"
)

// CycleRunner runs one check cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (monitor.Summary, error)
}

// Scheduler runs cycles periodically. At most one scheduled cycle is in
// flight at a time: the next tick waits for the previous cycle to finish.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// New creates a Scheduler. Pass nil logger to use the default logger.
func New(runner CycleRunner, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the scheduling goroutine. The first cycle runs
// immediately. It is non-blocking; cancel ctx to stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Wait blocks until the scheduling goroutine has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.RunCycle(ctx); err != nil {
		s.logger.Error("cycle failed", "error", err)
	}
}
