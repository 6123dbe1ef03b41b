package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"AltPull/internal/domain/errs"
	pkgkafka "AltPull/pkg/kafka"
)

func TestKafkaRunRequestHandler(t *testing.T) {
	t.Run("runs the decoded request", func(t *testing.T) {
		exec := &recordingExecutor{}
		h := NewKafkaRunRequestHandler("altdata.etl.requests", exec, nil)
		require.Equal(t, "altdata.etl.requests", h.Topic())

		err := h.Handle(context.Background(), []byte(`{"source":"news","symbol":"BTC","start":"2024-01-01","end":"2024-01-02T00:00:00Z","force":true}`))
		require.NoError(t, err)
		require.Len(t, exec.reqs, 1)
		req := exec.reqs[0]
		require.True(t, req.Force)
		require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *req.Start)
		require.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), *req.End)
	})

	t.Run("malformed payloads are poison", func(t *testing.T) {
		h := NewKafkaRunRequestHandler("t", &recordingExecutor{}, nil)
		for _, body := range []string{`{`, `{"source":"news"}`, `{"source":"news","symbol":"BTC","start":"yesterday"}`} {
			err := h.Handle(context.Background(), []byte(body))
			require.ErrorIs(t, err, pkgkafka.ErrPoisonMessage, body)
		}
	})

	t.Run("terminal failures are acknowledged", func(t *testing.T) {
		exec := &recordingExecutor{fail: map[string]error{
			"news":    &RunError{Stage: "validate", Err: errs.New(errs.KindValidation, "p", "bad rows")},
			"weather": errs.New(errs.KindConfig, "", "unknown source"),
			"onchain": &RunError{Stage: "lock", Err: ErrRunInProgress},
		}}
		h := NewKafkaRunRequestHandler("t", exec, nil)
		for _, src := range []string{"news", "weather", "onchain"} {
			require.NoError(t, h.Handle(context.Background(), []byte(`{"source":"`+src+`","symbol":"BTC"}`)))
		}
	})

	t.Run("transient failures are returned for retry", func(t *testing.T) {
		boom := errs.Wrap(errs.KindNetwork, "p", errors.New("connection reset"))
		h := NewKafkaRunRequestHandler("t", &recordingExecutor{fail: map[string]error{"news": boom}}, nil)
		err := h.Handle(context.Background(), []byte(`{"source":"news","symbol":"BTC"}`))
		require.ErrorIs(t, err, boom)
		require.NotErrorIs(t, err, pkgkafka.ErrPoisonMessage)
	})
}
