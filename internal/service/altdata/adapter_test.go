package altdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"AltPull/internal/domain/errs"
	"AltPull/internal/domain/models"
	"AltPull/internal/domain/repository"
)

func serveJSON(t *testing.T, body string, inspect func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAliasTable(t *testing.T) {
	t.Run("rejects alias mapped to two fields", func(t *testing.T) {
		_, err := NewAliasTable("p",
			FieldAliases{Canonical: "a", Aliases: []string{"x"}},
			FieldAliases{Canonical: "b", Aliases: []string{"x"}},
		)
		require.Error(t, err)
		require.Equal(t, errs.KindConfig, errs.KindOf(err))
	})

	t.Run("rejects field without aliases", func(t *testing.T) {
		_, err := NewAliasTable("p", FieldAliases{Canonical: "a"})
		require.Error(t, err)
	})

	t.Run("rejects unsupported default", func(t *testing.T) {
		_, err := NewAliasTable("p", FieldAliases{Canonical: "a", Aliases: []string{"a"}, Default: 3})
		require.Error(t, err)
	})

	t.Run("first present alias wins and defaults fill gaps", func(t *testing.T) {
		tbl, err := NewAliasTable("p",
			FieldAliases{Canonical: "v", Aliases: []string{"primary", "secondary"}, Default: 7.0},
		)
		require.NoError(t, err)
		require.Equal(t, 1.5, tbl.Float(map[string]interface{}{"primary": 1.5, "secondary": 2.0}, "v"))
		require.Equal(t, 2.0, tbl.Float(map[string]interface{}{"primary": nil, "secondary": "2"}, "v"))
		require.Equal(t, 7.0, tbl.Float(map[string]interface{}{}, "v"))
	})
}

func TestExtractEntries(t *testing.T) {
	t.Run("data envelope", func(t *testing.T) {
		entries, err := extractEntries("p", map[string]interface{}{"data": []interface{}{map[string]interface{}{"t": 1.0}}}, "data")
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})

	t.Run("bare array skips non objects", func(t *testing.T) {
		entries, err := extractEntries("p", []interface{}{map[string]interface{}{}, "junk", 3.0}, "data")
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})

	t.Run("missing container names provider", func(t *testing.T) {
		_, err := extractEntries("glassnode", map[string]interface{}{"result": []interface{}{}}, "data")
		require.ErrorIs(t, err, errs.ErrProviderResponse)
		require.Contains(t, err.Error(), "glassnode")
	})
}

func TestOnChainAdapterFetch(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	t.Run("maps aliases and sends provider query", func(t *testing.T) {
		var got url.Values
		var apiKey string
		body := `{"data":[
			{"t": 1704153600, "activeAddresses": 900, "transactionValue": 12.5, "stablecoinRatio": 0.2},
			{"t": 1704067200, "onchain_active_addresses": 800, "onchain_tx_volume": "10"},
			{"value": 3}
		]}`
		srv := serveJSON(t, body, func(r *http.Request) {
			got = r.URL.Query()
			apiKey = r.Header.Get("X-Api-Key")
		})

		m := &recordingMetrics{}
		client := newTestClient(t, srv.URL, m, nil)
		a, err := NewOnChainAdapter(client, AdapterConfig{
			Endpoint:     "/v1/metrics",
			APIKey:       "secret",
			ExtraFilters: map[string]string{"network": "mainnet"},
		})
		require.NoError(t, err)

		slice, err := a.Fetch(context.Background(), "btc", &start, &end)
		require.NoError(t, err)

		require.Equal(t, "btc", got.Get("symbol"))
		require.Equal(t, "24h", got.Get("interval"))
		require.Equal(t, "1704067200", got.Get("start"))
		require.Equal(t, "1704240000", got.Get("end"))
		require.Equal(t, "mainnet", got.Get("network"))
		require.Equal(t, "secret", apiKey)

		require.Equal(t, 2, slice.Len())
		require.Equal(t, "BTC", slice.Meta.Symbol)
		require.Equal(t, models.KindOnChain, slice.Meta.Kind)

		first := slice.Records[0].(models.OnChainRecord)
		require.True(t, first.Timestamp.Equal(start))
		require.Equal(t, 800.0, first.OnChainActiveAddresses)
		require.Equal(t, 10.0, first.OnChainTxVolume)
		require.Zero(t, first.StablecoinRatio)

		second := slice.Records[1].(models.OnChainRecord)
		require.Equal(t, 900.0, second.OnChainActiveAddresses)
		require.Equal(t, 0.2, second.StablecoinRatio)

		require.Equal(t, 1, m.count(repository.EventFetchSuccess))
		rows := m.find(repository.EventRowsIngested)
		require.Len(t, rows, 1)
		require.Equal(t, 2.0, rows[0].value)
	})

	t.Run("bare array envelope", func(t *testing.T) {
		srv := serveJSON(t, `[{"timestamp": "2024-01-01T00:00:00Z", "activeAddresses": 1}]`, nil)
		a, err := NewOnChainAdapter(newTestClient(t, srv.URL, nil, nil), AdapterConfig{})
		require.NoError(t, err)
		slice, err := a.Fetch(context.Background(), "ETH", nil, nil)
		require.NoError(t, err)
		require.Equal(t, 1, slice.Len())
	})

	t.Run("missing data container fails", func(t *testing.T) {
		srv := serveJSON(t, `{"result": []}`, nil)
		m := &recordingMetrics{}
		a, err := NewOnChainAdapter(newTestClient(t, srv.URL, m, nil), AdapterConfig{})
		require.NoError(t, err)
		_, err = a.Fetch(context.Background(), "ETH", nil, nil)
		require.ErrorIs(t, err, errs.ErrProviderResponse)
		require.Contains(t, err.Error(), "testprov")

		failures := m.find(repository.EventFetchFailure)
		require.Len(t, failures, 1)
		require.Equal(t, "provider_response", failures[0].labels[repository.LabelReason])
	})

	t.Run("duplicate timestamps keep the last row", func(t *testing.T) {
		srv := serveJSON(t, `{"data":[{"t":1704067200,"activeAddresses":1},{"t":1704067200,"activeAddresses":2}]}`, nil)
		a, err := NewOnChainAdapter(newTestClient(t, srv.URL, nil, nil), AdapterConfig{})
		require.NoError(t, err)
		slice, err := a.Fetch(context.Background(), "ETH", nil, nil)
		require.NoError(t, err)
		require.Equal(t, 1, slice.Len())
		require.Equal(t, 2.0, slice.Records[0].(models.OnChainRecord).OnChainActiveAddresses)
	})
}

func TestNewsAdapterFetch(t *testing.T) {
	t.Run("articles envelope with nested source", func(t *testing.T) {
		var auth, q, pageSize string
		body := `{"articles":[
			{"publishedAt":"2024-01-02T10:00:00Z","sentiment":0.4,"relevance":3,"source":{"name":"Reuters"},"title":"BTC up"},
			{"publishedAt":"2024-01-01T10:00:00Z","sentiment_score":-0.2}
		]}`
		srv := serveJSON(t, body, func(r *http.Request) {
			auth = r.Header.Get("Authorization")
			q = r.URL.Query().Get("q")
			pageSize = r.URL.Query().Get("pageSize")
		})

		a, err := NewNewsAdapter(newTestClient(t, srv.URL, nil, nil), AdapterConfig{APIKey: "tok", PageSize: 50})
		require.NoError(t, err)
		slice, err := a.Fetch(context.Background(), "BTC", nil, nil)
		require.NoError(t, err)

		require.Equal(t, "Bearer tok", auth)
		require.Equal(t, "BTC", q)
		require.Equal(t, "50", pageSize)
		require.Equal(t, 2, slice.Len())

		older := slice.Records[0].(models.NewsRecord)
		require.Equal(t, -0.2, older.SentimentScore)
		require.Zero(t, older.NewsVolume)
		require.Equal(t, "testprov", older.Source)

		newer := slice.Records[1].(models.NewsRecord)
		require.Equal(t, "Reuters", newer.Source)
		require.Equal(t, 3.0, newer.NewsVolume)
		require.Equal(t, "BTC up", newer.Headline)
	})

	t.Run("millisecond timestamps", func(t *testing.T) {
		srv := serveJSON(t, `{"data":[{"t":1704067200000,"sentiment":0.1,"source":"x"}]}`, nil)
		a, err := NewNewsAdapter(newTestClient(t, srv.URL, nil, nil), AdapterConfig{})
		require.NoError(t, err)
		slice, err := a.Fetch(context.Background(), "BTC", nil, nil)
		require.NoError(t, err)
		require.True(t, slice.Records[0].Time().Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	})
}
