package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"AltPull/internal/domain/models"
)

func tp(t time.Time) *time.Time { return &t }

func TestBuildRunKey(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	t.Run("format and digest", func(t *testing.T) {
		key := BuildRunKey(models.RunKeyInputs{Source: "News", Symbol: "btc", Start: &start, End: &end})

		sum := sha256.Sum256([]byte("news|BTC|2024-01-01T00:00:00+00:00|2024-01-03T00:00:00+00:00"))
		require.Equal(t, "news-btc-"+hex.EncodeToString(sum[:])[:16], key)
		require.Regexp(t, regexp.MustCompile(`^news-btc-[0-9a-f]{16}$`), key)
	})

	t.Run("stable under case and timezone", func(t *testing.T) {
		ny, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)
		a := BuildRunKey(models.RunKeyInputs{Source: "NEWS", Symbol: "BTC", Start: tp(start.In(ny)), End: &end})
		b := BuildRunKey(models.RunKeyInputs{Source: "news", Symbol: "btc", Start: &start, End: tp(end.In(ny))})
		require.Equal(t, a, b)
	})

	t.Run("absent bounds are empty", func(t *testing.T) {
		key := BuildRunKey(models.RunKeyInputs{Source: "onchain", Symbol: "ETH"})
		sum := sha256.Sum256([]byte("onchain|ETH||"))
		require.Equal(t, "onchain-eth-"+hex.EncodeToString(sum[:])[:16], key)
	})

	t.Run("window changes the key", func(t *testing.T) {
		a := BuildRunKey(models.RunKeyInputs{Source: "news", Symbol: "BTC", Start: &start})
		b := BuildRunKey(models.RunKeyInputs{Source: "news", Symbol: "BTC", Start: tp(start.Add(time.Second))})
		require.NotEqual(t, a, b)
	})
}

func TestIsoUTC(t *testing.T) {
	base := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	require.Equal(t, "", isoUTC(nil))
	require.Equal(t, "2024-05-06T07:08:09+00:00", isoUTC(&base))
	require.Equal(t, "2024-05-06T07:08:09.500000+00:00", isoUTC(tp(base.Add(500*time.Millisecond))))
	require.Equal(t, "2024-05-06T07:08:09.000000001+00:00", isoUTC(tp(base.Add(time.Nanosecond))))
}
