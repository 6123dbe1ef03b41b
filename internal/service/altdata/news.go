package altdata

import (
	"context"
	"strconv"
	"time"

	"AltPull/internal/domain/models"
)

var newsAliases = []FieldAliases{
	{Canonical: FieldTimestamp, Aliases: []string{"publishedAt", "timestamp", "t"}},
	{Canonical: FieldSentimentScore, Aliases: []string{"sentiment", "sentiment_score"}, Default: 0.0},
	{Canonical: FieldNewsVolume, Aliases: []string{"relevance", "volume", "news_volume"}, Default: 0.0},
	{Canonical: FieldSource, Aliases: []string{"source"}},
	{Canonical: FieldHeadline, Aliases: []string{"title", "headline"}, Default: ""},
	{Canonical: FieldURL, Aliases: []string{"url", "link"}, Default: ""},
}

// NewsAdapter fetches news sentiment from a REST feed.
type NewsAdapter struct {
	restAdapter
}

// NewNewsAdapter builds a news adapter on client. The API key is sent as a bearer token
// unless cfg.AuthHeader names another header.
func NewNewsAdapter(client *Client, cfg AdapterConfig) (*NewsAdapter, error) {
	aliases, err := NewAliasTable(client.Provider(), newsAliases...)
	if err != nil {
		return nil, err
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/news"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &NewsAdapter{restAdapter{
		client:    client,
		kind:      models.KindNews,
		cfg:       cfg,
		aliases:   aliases,
		envelopes: []string{"data", "articles"},
		headers:   authHeaders(cfg, "Authorization", "Bearer "),
		metrics:   client.metrics,
		logger:    client.logger,
	}}, nil
}

// Fetch returns sentiment rows for symbol within [start, end].
func (a *NewsAdapter) Fetch(ctx context.Context, symbol string, start, end *time.Time) (*models.DataSlice, error) {
	q := a.baseQuery(symbol, start, end)
	q.Set("q", symbol)
	q.Set("pageSize", strconv.Itoa(a.cfg.PageSize))
	if a.cfg.Language != "" {
		q.Set("language", a.cfg.Language)
	}
	return a.fetch(ctx, symbol, start, end, q, a.normalize)
}

func (a *NewsAdapter) normalize(entry map[string]interface{}) (models.Record, bool) {
	ts, ok := a.aliases.Time(entry, FieldTimestamp)
	if !ok {
		return nil, false
	}
	source := a.aliases.String(entry, FieldSource)
	if source == "" {
		source = a.Provider()
	}
	return models.NewsRecord{
		Timestamp:      ts,
		SentimentScore: a.aliases.Float(entry, FieldSentimentScore),
		NewsVolume:     a.aliases.Float(entry, FieldNewsVolume),
		Source:         source,
		Headline:       a.aliases.String(entry, FieldHeadline),
		URL:            a.aliases.String(entry, FieldURL),
	}, true
}
