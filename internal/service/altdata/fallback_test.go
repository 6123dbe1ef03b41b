package altdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"AltPull/internal/domain/errs"
	"AltPull/internal/domain/models"
	"AltPull/internal/domain/repository"
)

func oneRowSlice(provider string) *models.DataSlice {
	return models.NewDataSlice(models.SliceMetadata{Provider: provider, Kind: models.KindOnChain},
		[]models.Record{models.OnChainRecord{Timestamp: time.Unix(1704067200, 0).UTC()}})
}

func TestFallbackAdapter(t *testing.T) {
	t.Run("secondary serves after primary fails", func(t *testing.T) {
		primary := &stubAdapter{provider: "primary", kind: models.KindOnChain,
			err: errs.New(errs.KindProviderResponse, "primary", "bad payload")}
		secondary := &stubAdapter{provider: "secondary", kind: models.KindOnChain, slice: oneRowSlice("secondary")}

		m := &recordingMetrics{}
		f, err := NewFallbackAdapter("onchain", []repository.Adapter{primary, secondary}, WithFallbackMetrics(m))
		require.NoError(t, err)

		slice, err := f.Fetch(context.Background(), "BTC", nil, nil)
		require.NoError(t, err)
		require.Equal(t, "secondary", slice.Meta.Provider)

		events := m.find(repository.EventFallbackActivation)
		require.Len(t, events, 1)
		require.Equal(t, "primary", events[0].labels[repository.LabelProvider])
		require.Equal(t, "provider_response", events[0].labels[repository.LabelReason])
	})

	t.Run("primary success skips the rest", func(t *testing.T) {
		primary := &stubAdapter{provider: "primary", kind: models.KindOnChain, slice: oneRowSlice("primary")}
		secondary := &stubAdapter{provider: "secondary", kind: models.KindOnChain, slice: oneRowSlice("secondary")}
		m := &recordingMetrics{}
		f, err := NewFallbackAdapter("onchain", []repository.Adapter{primary, secondary}, WithFallbackMetrics(m))
		require.NoError(t, err)

		_, err = f.Fetch(context.Background(), "BTC", nil, nil)
		require.NoError(t, err)
		require.Zero(t, secondary.calls)
		require.Zero(t, m.count(repository.EventFallbackActivation))
	})

	t.Run("empty result accepted unless required non-empty", func(t *testing.T) {
		empty := models.NewDataSlice(models.SliceMetadata{Provider: "primary"}, nil)
		primary := &stubAdapter{provider: "primary", kind: models.KindOnChain, slice: empty}
		secondary := &stubAdapter{provider: "secondary", kind: models.KindOnChain, slice: oneRowSlice("secondary")}

		lenient, err := NewFallbackAdapter("onchain", []repository.Adapter{primary, secondary})
		require.NoError(t, err)
		slice, err := lenient.Fetch(context.Background(), "BTC", nil, nil)
		require.NoError(t, err)
		require.True(t, slice.Empty())

		strict, err := NewFallbackAdapter("onchain", []repository.Adapter{primary, secondary}, WithRequireNonEmpty(true))
		require.NoError(t, err)
		slice, err = strict.Fetch(context.Background(), "BTC", nil, nil)
		require.NoError(t, err)
		require.Equal(t, "secondary", slice.Meta.Provider)
	})

	t.Run("all fail surfaces the last error", func(t *testing.T) {
		primary := &stubAdapter{provider: "primary", kind: models.KindOnChain, err: errs.New(errs.KindAuth, "primary", "denied")}
		secondary := &stubAdapter{provider: "secondary", kind: models.KindOnChain, err: errs.New(errs.KindTimeout, "secondary", "slow")}
		m := &recordingMetrics{}
		f, err := NewFallbackAdapter("onchain", []repository.Adapter{primary, secondary}, WithFallbackMetrics(m))
		require.NoError(t, err)

		_, err = f.Fetch(context.Background(), "BTC", nil, nil)
		require.ErrorIs(t, err, errs.ErrTimeout)
		require.NotErrorIs(t, err, errs.ErrAuth)
		require.Contains(t, err.Error(), "primary, secondary")
		require.Equal(t, 2, m.count(repository.EventFallbackActivation))
	})

	t.Run("rejects mixed kinds", func(t *testing.T) {
		_, err := NewFallbackAdapter("mixed", []repository.Adapter{
			&stubAdapter{provider: "a", kind: models.KindOnChain},
			&stubAdapter{provider: "b", kind: models.KindNews},
		})
		require.Error(t, err)
	})

	t.Run("rejects empty chain", func(t *testing.T) {
		_, err := NewFallbackAdapter("none", nil)
		require.Error(t, err)
	})
}
