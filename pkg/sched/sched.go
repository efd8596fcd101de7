// Package sched drives periodic synchronization runs. It owns no sync logic
// itself; it calls the supplied run func once immediately and then on every
// interval tick until the context is cancelled.
package sched

import (
	"context"
	"log/slog"
	"time"
)

// RunFunc performs one synchronization run. Errors are reported to the
// scheduler's logger and never stop the loop.
type RunFunc func(ctx context.Context) error

// Scheduler repeats a run on a fixed interval. Cancellation is only honored
// between runs; a run already in flight always completes.
type Scheduler struct {
	interval time.Duration
	log      *slog.Logger
	run      RunFunc
}

// New creates a Scheduler. The interval must be positive.
func New(interval time.Duration, log *slog.Logger, run RunFunc) *Scheduler {
	return &Scheduler{
		interval: interval,
		log:      log,
		run:      run,
	}
}

// Loop blocks until ctx is cancelled. The first run starts immediately,
// subsequent runs fire on a fixed ticker. A slow run does not shift the
// schedule; ticks that arrive while a run is active are simply the next
// wakeup.
func (s *Scheduler) Loop(ctx context.Context) {
	s.log.Info("Scheduler started", "interval", s.interval)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopped")
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
	if err := s.run(ctx); err != nil {
		s.log.Error("Run failed", "error", err)
	}
}
