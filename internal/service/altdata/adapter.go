package altdata

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"AltPull/internal/domain/errs"
	"AltPull/internal/domain/models"
	"AltPull/internal/domain/repository"
	applogger "AltPull/pkg/logger"
)

// AdapterConfig holds the per-provider request shape.
type AdapterConfig struct {
	Endpoint     string
	Interval     string
	APIKey       string
	AuthHeader   string
	Language     string
	PageSize     int
	ExtraFilters map[string]string
}

// normalizeFunc maps one provider entry to a canonical record; ok=false drops the row.
type normalizeFunc func(entry map[string]interface{}) (models.Record, bool)

// restAdapter is the request/normalize loop shared by the concrete adapters.
type restAdapter struct {
	client    *Client
	kind      models.Kind
	cfg       AdapterConfig
	aliases   *AliasTable
	envelopes []string
	headers   map[string]string
	metrics   repository.Metrics
	logger    *applogger.Logger
}

func (a *restAdapter) Provider() string  { return a.client.Provider() }
func (a *restAdapter) Kind() models.Kind { return a.kind }

// baseQuery carries symbol, interval and the unix-second bounds.
func (a *restAdapter) baseQuery(symbol string, start, end *time.Time) url.Values {
	q := url.Values{}
	q.Set("symbol", symbol)
	if a.cfg.Interval != "" {
		q.Set("interval", a.cfg.Interval)
	}
	if start != nil {
		q.Set("start", strconv.FormatInt(start.UTC().Unix(), 10))
	}
	if end != nil {
		q.Set("end", strconv.FormatInt(end.UTC().Unix(), 10))
	}
	for k, v := range a.cfg.ExtraFilters {
		q.Set(k, v)
	}
	return q
}

func (a *restAdapter) fetch(ctx context.Context, symbol string, start, end *time.Time, query url.Values, normalize normalizeFunc) (*models.DataSlice, error) {
	provider := a.Provider()
	labels := map[string]string{
		repository.LabelProvider: provider,
		repository.LabelSymbol:   strings.ToUpper(symbol),
	}
	started := time.Now()

	slice, err := a.fetchOnce(ctx, symbol, start, end, query, normalize)

	a.metrics.Record(repository.EventFetchDuration, labels, time.Since(started).Seconds())
	if err != nil {
		failLabels := copyLabels(labels)
		failLabels[repository.LabelReason] = reasonOf(err)
		a.metrics.Record(repository.EventFetchFailure, failLabels, 1)
		a.logger.Warn("provider fetch failed",
			applogger.String("symbol", symbol),
			applogger.Duration("duration_ms", time.Since(started)),
			applogger.Error(err),
		)
		return nil, err
	}

	a.metrics.Record(repository.EventFetchSuccess, labels, 1)
	a.metrics.Record(repository.EventRowsIngested, labels, float64(slice.Len()))
	a.logger.Debug("provider fetch ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", slice.Len()),
		applogger.Duration("duration_ms", time.Since(started)),
	)
	return slice, nil
}

func (a *restAdapter) fetchOnce(ctx context.Context, symbol string, start, end *time.Time, query url.Values, normalize normalizeFunc) (*models.DataSlice, error) {
	payload, err := a.client.GetJSON(ctx, a.cfg.Endpoint, query, a.headers)
	if err != nil {
		return nil, err
	}
	entries, err := extractEntries(a.Provider(), payload, a.envelopes...)
	if err != nil {
		return nil, err
	}

	records := make([]models.Record, 0, len(entries))
	dropped := 0
	for _, entry := range entries {
		rec, ok := normalize(entry)
		if !ok {
			dropped++
			continue
		}
		records = append(records, rec)
	}
	if dropped > 0 {
		a.logger.Warn("dropped rows without a usable timestamp",
			applogger.String("symbol", symbol),
			applogger.Int("dropped", dropped),
		)
	}

	return models.NewDataSlice(models.SliceMetadata{
		Provider: a.Provider(),
		Symbol:   strings.ToUpper(symbol),
		Kind:     a.kind,
		Start:    start,
		End:      end,
	}, records), nil
}

func authHeaders(cfg AdapterConfig, defaultHeader, prefix string) map[string]string {
	if cfg.APIKey == "" {
		return nil
	}
	header := cfg.AuthHeader
	if header == "" {
		header = defaultHeader
	}
	value := cfg.APIKey
	if strings.EqualFold(header, "Authorization") && prefix != "" {
		value = prefix + cfg.APIKey
	}
	return map[string]string{header: value}
}

func copyLabels(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func reasonOf(err error) string {
	if kind := errs.KindOf(err); kind != "" {
		return string(kind)
	}
	return "unknown"
}
