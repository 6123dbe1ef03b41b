package scheduler

import (
	"context"
	"errors"
	"time"

	applogger "AltPull/pkg/logger"
)

// TickFunc is invoked on every interval with the bucket it closes.
type TickFunc func(ctx context.Context, bucket time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
}

// Scheduler drives aligned execution of ingestion ticks.
type Scheduler struct {
	opts   Options
	logger *applogger.Logger
	now    func() time.Time
}

// New constructs a Scheduler. Interval must be positive.
func New(opts Options, logger *applogger.Logger) (*Scheduler, error) {
	if opts.Interval <= 0 {
		return nil, errors.New("scheduler interval must be positive")
	}
	if logger == nil {
		logger = applogger.Nop()
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With(applogger.String("component", "scheduler")),
		now:    time.Now,
	}, nil
}

// Run blocks, invoking tick at each interval until ctx is cancelled. A failed tick is logged
// and the loop continues.
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

	next := s.nextTick(s.now().UTC())
	for {
		delay := next.Sub(s.now())
		if delay < 0 {
			next = s.nextTick(s.now().UTC())
			delay = next.Sub(s.now())
		}

		timer := time.NewTimer(delay)
		s.logger.Debug("waiting for next bucket", applogger.Time("next_bucket", next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		bucket := s.bucketStart(next)
		s.logger.Info("executing scheduled tick", applogger.Time("bucket", bucket))
		if err := tick(ctx, bucket); err != nil {
			s.logger.Error("tick execution failed", applogger.Error(err), applogger.Time("bucket", bucket))
		}

		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
