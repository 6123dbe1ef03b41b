package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"AltPull/internal/domain/errs"
)

const (
	defaultBaseDelay = 500 * time.Millisecond
	defaultMaxDelay  = 8 * time.Second
)

// Config encapsulates exponential backoff settings.
type Config struct {
	MaxRetries int           `yaml:"max_retries" default:"3"`
	BaseDelay  time.Duration `yaml:"base_delay" default:"500ms"`
	MaxDelay   time.Duration `yaml:"max_delay" default:"8s"`
	// Jitter is the fraction (0..1) of each delay that may be randomly shaved off.
	Jitter float64 `yaml:"jitter"`
	// Retryable decides which errors are retried; defaults to errs.IsRetryable.
	Retryable func(error) bool `yaml:"-"`
}

// Option configures Policy.
type Option func(*Policy)

// WithSleep overrides how the policy waits between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Policy) { p.sleep = sleep }
}

// WithOnRetry registers a callback invoked before each backoff.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(p *Policy) { p.onRetry = fn }
}

// Policy retries one logical call. It holds no per-call state.
type Policy struct {
	cfg     Config
	sleep   func(ctx context.Context, d time.Duration) error
	onRetry func(attempt int, err error, delay time.Duration)
}

// New constructs a policy with sane defaults.
func New(cfg Config, opts ...Option) *Policy {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Jitter < 0 || cfg.Jitter >= 1 {
		cfg.Jitter = 0
	}
	if cfg.Retryable == nil {
		cfg.Retryable = errs.IsRetryable
	}
	p := &Policy{cfg: cfg, sleep: sleepCtx}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Policy) Config() Config { return p.cfg }

// Backoff returns min(base*2^attempt, max) before jitter; attempt starts at 0.
func (p *Policy) Backoff(attempt int) time.Duration {
	d := float64(p.cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if d > float64(p.cfg.MaxDelay) {
		return p.cfg.MaxDelay
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, returns a non-retryable error, or retries are exhausted.
// The last observed error is returned.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do is the value-returning form of Policy.Do.
func Do[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= p.cfg.MaxRetries || !p.cfg.Retryable(err) {
			return v, err
		}

		delay := p.delay(attempt, err)
		if p.onRetry != nil {
			p.onRetry(attempt+1, err, delay)
		}
		if serr := p.sleep(ctx, delay); serr != nil {
			return v, err
		}
	}
}

func (p *Policy) delay(attempt int, err error) time.Duration {
	d := p.Backoff(attempt)
	if p.cfg.Jitter > 0 && d > 0 {
		d -= time.Duration(rand.Float64() * p.cfg.Jitter * float64(d))
	}
	if ra := errs.RetryAfterOf(err); ra > d {
		d = ra
		if d > p.cfg.MaxDelay {
			d = p.cfg.MaxDelay
		}
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
