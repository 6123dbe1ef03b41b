package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterAllow(t *testing.T) {
	t.Run("grants up to capacity then rejects", func(t *testing.T) {
		l := New(Config{CallsPerWindow: 2, Window: time.Minute})
		require.True(t, l.Allow("news"))
		require.True(t, l.Allow("news"))
		require.False(t, l.Allow("news"))
		require.Equal(t, 2, l.InWindow("news"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		l := New(Config{CallsPerWindow: 1, Window: time.Minute})
		require.True(t, l.Allow("a"))
		require.True(t, l.Allow("b"))
		require.False(t, l.Allow("a"))
	})

	t.Run("old calls leave the window", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		l := New(Config{CallsPerWindow: 1, Window: time.Second})
		l.now = func() time.Time { return now }
		require.True(t, l.Allow("k"))
		require.False(t, l.Allow("k"))
		now = now.Add(time.Second)
		require.True(t, l.Allow("k"))
	})

	t.Run("disabled config never limits", func(t *testing.T) {
		l := New(Config{})
		for i := 0; i < 100; i++ {
			require.True(t, l.Allow("k"))
		}
	})
}

func TestLimiterWait(t *testing.T) {
	t.Run("waits for the oldest call to expire", func(t *testing.T) {
		window := 80 * time.Millisecond
		l := New(Config{CallsPerWindow: 2, Window: window})
		ctx := context.Background()

		_, err := l.Wait(ctx, "k")
		require.NoError(t, err)
		_, err = l.Wait(ctx, "k")
		require.NoError(t, err)

		start := time.Now()
		_, err = l.Wait(ctx, "k")
		require.NoError(t, err)
		require.GreaterOrEqual(t, time.Since(start), window-10*time.Millisecond)
	})

	t.Run("context cancellation aborts the wait", func(t *testing.T) {
		l := New(Config{CallsPerWindow: 1, Window: time.Hour})
		require.True(t, l.Allow("k"))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := l.Wait(ctx, "k")
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("concurrent callers never exceed capacity per window", func(t *testing.T) {
		window := 100 * time.Millisecond
		capacity := 3
		l := New(Config{CallsPerWindow: capacity, Window: window})

		var mu sync.Mutex
		var grants []time.Time
		var failed []error

		var wg sync.WaitGroup
		for i := 0; i < 9; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := l.Wait(context.Background(), "provider")
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed = append(failed, err)
					return
				}
				grants = append(grants, time.Now())
			}()
		}
		wg.Wait()
		require.Empty(t, failed)

		sort.Slice(grants, func(i, j int) bool { return grants[i].Before(grants[j]) })
		require.Len(t, grants, 9)
		tolerance := 15 * time.Millisecond
		for i := 0; i+capacity < len(grants); i++ {
			require.GreaterOrEqual(t, grants[i+capacity].Sub(grants[i]), window-tolerance)
		}
	})
}
