package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	t.Run("round trips structs as JSON", func(t *testing.T) {
		type payload struct {
			RunKey string `json:"run_key"`
			Rows   int    `json:"rows"`
		}
		require.NoError(t, mc.Set(ctx, "a", payload{RunKey: "k", Rows: 3}, time.Minute))
		var got payload
		require.NoError(t, mc.Get(ctx, "a", &got))
		require.Equal(t, payload{RunKey: "k", Rows: 3}, got)
	})

	t.Run("miss and expiry", func(t *testing.T) {
		var s string
		require.ErrorIs(t, mc.Get(ctx, "nope", &s), ErrCacheMiss)

		require.NoError(t, mc.Set(ctx, "short", "v", time.Millisecond))
		time.Sleep(5 * time.Millisecond)
		require.ErrorIs(t, mc.Get(ctx, "short", &s), ErrCacheMiss)
	})

	t.Run("lock is exclusive until unlocked or expired", func(t *testing.T) {
		ok, err := mc.TryLock(ctx, "lock", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = mc.TryLock(ctx, "lock", time.Minute)
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, mc.Unlock(ctx, "lock"))
		ok, err = mc.TryLock(ctx, "lock", time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)

		time.Sleep(5 * time.Millisecond)
		ok, err = mc.TryLock(ctx, "lock", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("evicts least recently used at capacity", func(t *testing.T) {
		small := NewMemoryCache(WithMemoryMaxSize(2))
		defer small.Close()
		require.NoError(t, small.Set(ctx, "x", "1", 0))
		time.Sleep(time.Millisecond)
		require.NoError(t, small.Set(ctx, "y", "2", 0))
		time.Sleep(time.Millisecond)
		require.NoError(t, small.Set(ctx, "z", "3", 0))

		exists, err := small.Exists(ctx, "x")
		require.NoError(t, err)
		require.False(t, exists)
		exists, err = small.Exists(ctx, "y", "z")
		require.NoError(t, err)
		require.True(t, exists)
	})
}
