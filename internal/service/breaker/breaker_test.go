package breaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"AltPull/internal/domain/errs"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errBoom = errs.New(errs.KindNetwork, "p", "boom")

func newTestBreaker(threshold int, coolDown time.Duration) (*Breaker, *fakeClock, *[]string) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	var changes []string
	b := New("glassnode", Config{FailureThreshold: threshold, CoolDown: coolDown, HalfOpenTrials: 1},
		WithClock(clock.Now),
		WithStateChange(func(_ string, from, to State) {
			changes = append(changes, from.String()+"->"+to.String())
		}),
	)
	return b, clock, &changes
}

func TestBreakerTransitions(t *testing.T) {
	t.Run("three consecutive failures open the circuit", func(t *testing.T) {
		b, _, changes := newTestBreaker(3, time.Minute)
		for i := 0; i < 3; i++ {
			require.Equal(t, Closed, b.State())
			_ = b.Execute(func() error { return errBoom })
		}
		require.Equal(t, Open, b.State())
		require.Equal(t, []string{"closed->open"}, *changes)
	})

	t.Run("open circuit fails fast without calling", func(t *testing.T) {
		b, _, _ := newTestBreaker(1, time.Minute)
		_ = b.Execute(func() error { return errBoom })

		called := false
		err := b.Execute(func() error { called = true; return nil })
		require.False(t, called)
		require.ErrorIs(t, err, errs.ErrCircuitOpen)
		require.Equal(t, errs.KindCircuitOpen, errs.KindOf(err))
		require.False(t, errs.IsRetryable(err))
	})

	t.Run("cool-down moves to half-open and success closes", func(t *testing.T) {
		b, clock, changes := newTestBreaker(3, time.Minute)
		for i := 0; i < 3; i++ {
			_ = b.Execute(func() error { return errBoom })
		}
		clock.Advance(time.Minute)

		require.NoError(t, b.Allow())
		require.Equal(t, HalfOpen, b.State())
		b.Record(nil)
		require.Equal(t, Closed, b.State())
		require.Equal(t, 0, b.Failures())
		require.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, *changes)
	})

	t.Run("half-open failure reopens with a fresh cool-down", func(t *testing.T) {
		b, clock, _ := newTestBreaker(3, time.Minute)
		for i := 0; i < 3; i++ {
			_ = b.Execute(func() error { return errBoom })
		}
		clock.Advance(time.Minute)
		require.NoError(t, b.Allow())
		b.Record(errBoom)
		require.Equal(t, Open, b.State())

		clock.Advance(30 * time.Second)
		require.ErrorIs(t, b.Allow(), errs.ErrCircuitOpen)
		clock.Advance(30 * time.Second)
		require.NoError(t, b.Allow())
		require.Equal(t, HalfOpen, b.State())
	})

	t.Run("half-open trial budget limits concurrent probes", func(t *testing.T) {
		b, clock, _ := newTestBreaker(1, time.Second)
		_ = b.Execute(func() error { return errBoom })
		clock.Advance(time.Second)

		require.NoError(t, b.Allow())
		require.ErrorIs(t, b.Allow(), errs.ErrCircuitOpen)
	})

	t.Run("released trial frees the half-open slot", func(t *testing.T) {
		b, clock, _ := newTestBreaker(1, time.Second)
		_ = b.Execute(func() error { return errBoom })
		clock.Advance(time.Second)

		require.NoError(t, b.Allow())
		b.Release()
		require.Equal(t, HalfOpen, b.State())
		require.Equal(t, 1, b.Failures())
		require.NoError(t, b.Allow())
	})

	t.Run("success in closed state resets the count", func(t *testing.T) {
		b, _, _ := newTestBreaker(3, time.Minute)
		_ = b.Execute(func() error { return errBoom })
		_ = b.Execute(func() error { return errBoom })
		_ = b.Execute(func() error { return nil })
		_ = b.Execute(func() error { return errBoom })
		require.Equal(t, Closed, b.State())
		require.Equal(t, 1, b.Failures())
	})

	t.Run("circuit-open outcomes are not counted", func(t *testing.T) {
		b, _, _ := newTestBreaker(2, time.Minute)
		b.Record(errs.New(errs.KindCircuitOpen, "other", "open"))
		b.Record(errs.New(errs.KindCircuitOpen, "other", "open"))
		require.Equal(t, Closed, b.State())
		require.Equal(t, 0, b.Failures())
	})
}

func TestBreakerConcurrentFailures(t *testing.T) {
	b, _, changes := newTestBreaker(5, time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Execute(func() error { return errors.New("down") })
		}()
	}
	wg.Wait()
	require.Equal(t, Open, b.State())
	require.Len(t, *changes, 1)
}
