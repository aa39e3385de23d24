package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every aligned interval.
type TickFunc func(ctx context.Context, at time.Time) error

// LoopOptions tune the in-process loop.
type LoopOptions struct {
	Interval     time.Duration
	AlignToStart bool
	RunAtStart   bool
}

// Loop repeats a pass on a fixed interval for hosts without an external cron.
type Loop struct {
	opts   LoopOptions
	logger zerolog.Logger
}

// NewLoop constructs a Loop. The interval must be positive.
func NewLoop(opts LoopOptions, logger zerolog.Logger) *Loop {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Loop{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking tick at each interval until ctx is cancelled. Tick
// errors are logged and do not stop the loop.
func (l *Loop) Run(ctx context.Context, tick TickFunc) error {
	if l.opts.RunAtStart {
		l.fire(ctx, tick, time.Now().UTC())
	}

	next := l.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = l.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		l.logger.Debug().Time("next_run", next).Msg("waiting for next run")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		l.fire(ctx, tick, next)
		next = next.Add(l.opts.Interval)
	}
}

func (l *Loop) fire(ctx context.Context, tick TickFunc, at time.Time) {
	l.logger.Info().Time("at", at).Msg("executing scheduled run")
	if err := tick(ctx, at); err != nil {
		l.logger.Error().Err(err).Time("at", at).Msg("scheduled run failed")
	}
}

func (l *Loop) nextTick(now time.Time) time.Time {
	if !l.opts.AlignToStart {
		return now.Add(l.opts.Interval)
	}
	next := now.Truncate(l.opts.Interval)
	if !next.After(now) {
		next = next.Add(l.opts.Interval)
	}
	return next
}
