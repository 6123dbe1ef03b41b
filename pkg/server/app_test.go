package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"AltPull/internal/scheduler"
)

func TestRunTicksAndClosesInReverseOrder(t *testing.T) {
	sched, err := scheduler.New(scheduler.Options{Interval: 5 * time.Millisecond}, nil)
	require.NoError(t, err)

	var ticks atomic.Int32
	var order []string
	ctx, cancel := context.WithCancel(context.Background())
	app := New(nil, nil,
		WithScheduler(sched, func(context.Context, time.Time) error {
			if ticks.Add(1) == 2 {
				cancel()
			}
			return nil
		}),
		WithClosers(
			Closer{Name: "clickhouse", Close: func() error { order = append(order, "clickhouse"); return nil }},
			Closer{Name: "redis", Close: func() error { order = append(order, "redis"); return errors.New("already closed") }},
		),
	)

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case err := <-done:
		require.ErrorContains(t, err, "already closed")
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}
	require.GreaterOrEqual(t, ticks.Load(), int32(2))
	require.Equal(t, []string{"redis", "clickhouse"}, order)
}
