package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per scheduled run with the run's slot time.
type TickFunc func(ctx context.Context, runAt time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	RunOnStart   bool
}

// Scheduler drives periodic ingestion runs.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if opts.Interval <= 0 {
		return nil, errors.New("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run blocks, invoking tick at each interval until ctx is cancelled.
// Tick errors are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.RunOnStart {
		s.execute(ctx, tick, s.now())
	}

	next := s.nextTick(s.now())
	for {
		delay := next.Sub(s.now())
		if delay < 0 {
			next = s.nextTick(s.now())
			delay = next.Sub(s.now())
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_run", next).Msg("waiting for next run")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		s.execute(ctx, tick, s.slotStart(next))
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, runAt time.Time) {
	s.logger.Info().Time("run_at", runAt).Msg("executing scheduled run")
	if err := tick(ctx, runAt); err != nil {
		s.logger.Error().Err(err).Time("run_at", runAt).Msg("scheduled run failed")
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	slot := now.Truncate(s.opts.Interval)
	if !slot.After(now) {
		slot = slot.Add(s.opts.Interval)
	}
	return slot
}

func (s *Scheduler) slotStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
