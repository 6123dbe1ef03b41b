package altdata

import (
	"context"
	"time"

	"AltPull/internal/domain/models"
)

var onChainAliases = []FieldAliases{
	{Canonical: FieldTimestamp, Aliases: []string{"t", "timestamp"}},
	{Canonical: FieldOnChainActiveAddresses, Aliases: []string{"activeAddresses", "onchain_active_addresses"}, Default: 0.0},
	{Canonical: FieldOnChainTxVolume, Aliases: []string{"transactionValue", "onchain_tx_volume"}, Default: 0.0},
	{Canonical: FieldStablecoinRatio, Aliases: []string{"stablecoinRatio", "stablecoin_ratio"}, Default: 0.0},
}

// OnChainAdapter fetches on-chain network metrics.
type OnChainAdapter struct {
	restAdapter
}

// NewOnChainAdapter builds an on-chain adapter on client. The API key goes in X-Api-Key
// unless cfg.AuthHeader overrides it.
func NewOnChainAdapter(client *Client, cfg AdapterConfig) (*OnChainAdapter, error) {
	aliases, err := NewAliasTable(client.Provider(), onChainAliases...)
	if err != nil {
		return nil, err
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/metrics"
	}
	if cfg.Interval == "" {
		cfg.Interval = "24h"
	}
	return &OnChainAdapter{restAdapter{
		client:    client,
		kind:      models.KindOnChain,
		cfg:       cfg,
		aliases:   aliases,
		envelopes: []string{"data"},
		headers:   authHeaders(cfg, "X-Api-Key", ""),
		metrics:   client.metrics,
		logger:    client.logger,
	}}, nil
}

// Fetch returns on-chain rows for symbol within [start, end].
func (a *OnChainAdapter) Fetch(ctx context.Context, symbol string, start, end *time.Time) (*models.DataSlice, error) {
	return a.fetch(ctx, symbol, start, end, a.baseQuery(symbol, start, end), a.normalize)
}

func (a *OnChainAdapter) normalize(entry map[string]interface{}) (models.Record, bool) {
	ts, ok := a.aliases.Time(entry, FieldTimestamp)
	if !ok {
		return nil, false
	}
	return models.OnChainRecord{
		Timestamp:              ts,
		OnChainActiveAddresses: a.aliases.Float(entry, FieldOnChainActiveAddresses),
		OnChainTxVolume:        a.aliases.Float(entry, FieldOnChainTxVolume),
		StablecoinRatio:        a.aliases.Float(entry, FieldStablecoinRatio),
	}, true
}
