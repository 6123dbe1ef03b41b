package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"AltPull/internal/domain/errs"

	"github.com/stretchr/testify/require"
)

func recordSleeps(delays *[]time.Duration) Option {
	return WithSleep(func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	})
}

func TestNew(t *testing.T) {
	t.Run("with defaults", func(t *testing.T) {
		p := New(Config{})
		require.Equal(t, defaultBaseDelay, p.Config().BaseDelay)
		require.Equal(t, defaultMaxDelay, p.Config().MaxDelay)
		require.Equal(t, 0, p.Config().MaxRetries)
	})

	t.Run("negative values use defaults", func(t *testing.T) {
		p := New(Config{MaxRetries: -1, BaseDelay: -time.Second, Jitter: 3})
		require.Equal(t, 0, p.Config().MaxRetries)
		require.Equal(t, defaultBaseDelay, p.Config().BaseDelay)
		require.Zero(t, p.Config().Jitter)
	})
}

func TestBackoff(t *testing.T) {
	p := New(Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})
	require.Equal(t, 100*time.Millisecond, p.Backoff(0))
	require.Equal(t, 200*time.Millisecond, p.Backoff(1))
	require.Equal(t, 800*time.Millisecond, p.Backoff(3))
	require.Equal(t, time.Second, p.Backoff(4))
	require.Equal(t, time.Second, p.Backoff(30))
}

func TestPolicyDo(t *testing.T) {
	ctx := context.Background()
	transient := errs.New(errs.KindNetwork, "p", "reset")

	t.Run("success on first try", func(t *testing.T) {
		var delays []time.Duration
		p := New(Config{MaxRetries: 3}, recordSleeps(&delays))
		calls := 0
		require.NoError(t, p.Do(ctx, func(context.Context) error { calls++; return nil }))
		require.Equal(t, 1, calls)
		require.Empty(t, delays)
	})

	t.Run("retries transient errors with exponential delays", func(t *testing.T) {
		var delays []time.Duration
		p := New(Config{MaxRetries: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond}, recordSleeps(&delays))
		calls := 0
		err := p.Do(ctx, func(context.Context) error {
			calls++
			if calls < 4 {
				return transient
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 4, calls)
		require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}, delays)
	})

	t.Run("exhausted retries surface the last error", func(t *testing.T) {
		var delays []time.Duration
		p := New(Config{MaxRetries: 2}, recordSleeps(&delays))
		calls := 0
		err := p.Do(ctx, func(context.Context) error {
			calls++
			return errs.New(errs.KindTimeout, "p", "attempt").WithStatus(calls)
		})
		require.Error(t, err)
		require.Equal(t, 3, calls)
		var typed *errs.Error
		require.True(t, errors.As(err, &typed))
		require.Equal(t, 3, typed.Status)
	})

	t.Run("non-retryable errors propagate immediately", func(t *testing.T) {
		for _, kind := range []errs.Kind{errs.KindProviderResponse, errs.KindAuth, errs.KindCircuitOpen} {
			var delays []time.Duration
			p := New(Config{MaxRetries: 5}, recordSleeps(&delays))
			calls := 0
			err := p.Do(ctx, func(context.Context) error {
				calls++
				return errs.New(kind, "p", "fatal")
			})
			require.Error(t, err)
			require.Equal(t, 1, calls, string(kind))
			require.Empty(t, delays)
		}
	})

	t.Run("retry-after extends the delay up to the max", func(t *testing.T) {
		var delays []time.Duration
		p := New(Config{MaxRetries: 1, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second}, recordSleeps(&delays))
		_ = p.Do(ctx, func(context.Context) error {
			return errs.New(errs.KindRateLimited, "p", "429").WithRetryAfter(5 * time.Second)
		})
		require.Equal(t, []time.Duration{time.Second}, delays)
	})

	t.Run("context cancellation stops retrying", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		p := New(Config{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour})
		calls := 0
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		err := p.Do(cctx, func(context.Context) error { calls++; return transient })
		require.ErrorIs(t, err, errs.ErrNetwork)
		require.Equal(t, 1, calls)
	})

	t.Run("value form returns the result", func(t *testing.T) {
		p := New(Config{MaxRetries: 1}, WithSleep(func(context.Context, time.Duration) error { return nil }))
		calls := 0
		v, err := Do(ctx, p, func(context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, transient
			}
			return 42, nil
		})
		require.NoError(t, err)
		require.Equal(t, 42, v)
	})
}
