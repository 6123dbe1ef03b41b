package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"AltPull/internal/domain/errs"
	"AltPull/internal/domain/models"
	drepo "AltPull/internal/domain/repository"
	"AltPull/internal/repository"
	"AltPull/internal/services/validation"
	"AltPull/pkg/cache"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeAdapter struct {
	provider string
	kind     models.Kind
	records  []models.Record
	err      error
	calls    int
}

func (a *fakeAdapter) Provider() string  { return a.provider }
func (a *fakeAdapter) Kind() models.Kind { return a.kind }
func (a *fakeAdapter) Fetch(_ context.Context, symbol string, start, end *time.Time) (*models.DataSlice, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return models.NewDataSlice(models.SliceMetadata{Provider: a.provider, Symbol: symbol, Kind: a.kind, Start: start, End: end}, a.records), nil
}

type fakeWriter struct {
	mu     sync.Mutex
	writes int
	err    error
}

func (w *fakeWriter) Write(_ context.Context, source string, slice *models.DataSlice) (models.StorageResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	if w.err != nil {
		return models.StorageResult{}, w.err
	}
	return models.StorageResult{RowsWritten: slice.Len(), PartitionsWritten: 1, BasePath: "/data/" + source}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events map[string][]map[string]string
}

func (m *eventLog) Record(event string, labels map[string]string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events == nil {
		m.events = make(map[string][]map[string]string)
	}
	m.events[event] = append(m.events[event], labels)
}

func (m *eventLog) count(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events[event])
}

type capturePublisher struct {
	records []models.RunRecord
}

func (p *capturePublisher) PublishRun(_ context.Context, rec models.RunRecord) error {
	p.records = append(p.records, rec)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func newsRecords() []models.Record {
	return []models.Record{
		models.NewsRecord{Timestamp: day0, SentimentScore: 0.2, NewsVolume: 3, Source: "wire"},
		models.NewsRecord{Timestamp: day0.Add(time.Hour), SentimentScore: -0.4, NewsVolume: 1, Source: "wire"},
	}
}

type runnerFixture struct {
	runner    *ETLRunner
	adapter   *fakeAdapter
	writer    *fakeWriter
	metrics   *eventLog
	catalog   *repository.MemoryRunCatalog
	publisher *capturePublisher
}

func newRunnerFixture(t *testing.T, adapter *fakeAdapter, cfg ETLConfig, opts ...ETLOption) *runnerFixture {
	t.Helper()
	mem := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })

	f := &runnerFixture{
		adapter:   adapter,
		writer:    &fakeWriter{},
		metrics:   &eventLog{},
		catalog:   repository.NewMemoryRunCatalog(10),
		publisher: &capturePublisher{},
	}
	base := []ETLOption{
		WithRunLedger(repository.NewCacheRunLedger(mem)),
		WithRunCatalog(f.catalog),
		WithRunPublisher(f.publisher),
		WithETLMetrics(f.metrics),
		WithQualityChecker(validation.NewExpectationChecker(nil)),
	}
	f.runner = NewETLRunner(cfg, Sources{"news": adapter}, validation.NewSchemaValidator(), f.writer, append(base, opts...)...)
	return f
}

func TestETLRunner_Run(t *testing.T) {
	ctx := context.Background()
	end := day0.Add(48 * time.Hour)

	t.Run("happy path persists and records history", func(t *testing.T) {
		f := newRunnerFixture(t, &fakeAdapter{provider: "newsapi", kind: models.KindNews, records: newsRecords()}, ETLConfig{})

		res, err := f.runner.Run(ctx, models.RunRequest{Source: "News", Symbol: "btc", Start: &day0, End: &end})
		require.NoError(t, err)
		require.Equal(t, BuildRunKey(models.RunKeyInputs{Source: "news", Symbol: "BTC", Start: &day0, End: &end}), res.RunKey)
		require.NotEmpty(t, res.FlowRunID)
		require.Equal(t, "newsapi", res.Provider)
		require.Equal(t, 2, res.RowsIngested)
		require.True(t, res.Validation.Passed)
		require.NotNil(t, res.Quality)
		require.True(t, res.Quality.Passed)
		require.Equal(t, 2, res.Storage.RowsWritten)

		require.Equal(t, 1, f.metrics.count(drepo.EventFlowSuccess))
		require.Equal(t, 1, f.metrics.count(drepo.EventFlowDuration))
		runs, err := f.catalog.List(ctx, "news", "BTC", 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		require.Equal(t, models.RunStatusSuccess, runs[0].Status)
		require.Len(t, f.publisher.records, 1)
	})

	t.Run("identical request is skipped unless forced", func(t *testing.T) {
		f := newRunnerFixture(t, &fakeAdapter{provider: "newsapi", kind: models.KindNews, records: newsRecords()}, ETLConfig{})
		req := models.RunRequest{Source: "news", Symbol: "BTC", Start: &day0, End: &end}

		first, err := f.runner.Run(ctx, req)
		require.NoError(t, err)
		second, err := f.runner.Run(ctx, req)
		require.NoError(t, err)
		require.True(t, second.Skipped)
		require.Equal(t, first.RunKey, second.RunKey)
		require.NotEqual(t, first.FlowRunID, second.FlowRunID)
		require.Equal(t, 1, f.adapter.calls)
		require.Equal(t, 1, f.writer.writes)

		req.Force = true
		forced, err := f.runner.Run(ctx, req)
		require.NoError(t, err)
		require.False(t, forced.Skipped)
		require.Equal(t, 2, f.writer.writes)
	})

	t.Run("validation failure halts persistence and lists every violation", func(t *testing.T) {
		bad := []models.Record{
			models.NewsRecord{Timestamp: day0, SentimentScore: 1.5, NewsVolume: 1, Source: "wire"},
			models.NewsRecord{Timestamp: day0.Add(time.Hour), SentimentScore: 0, NewsVolume: -2, Source: "wire"},
		}
		f := newRunnerFixture(t, &fakeAdapter{provider: "newsapi", kind: models.KindNews, records: bad}, ETLConfig{})

		res, err := f.runner.Run(ctx, models.RunRequest{Source: "news", Symbol: "BTC"})
		var runErr *RunError
		require.ErrorAs(t, err, &runErr)
		require.Equal(t, models.StageValidate, runErr.Stage)
		require.Equal(t, res.RunKey, runErr.RunKey)
		require.NotNil(t, runErr.Validation)
		require.Len(t, runErr.Validation.Errors, 2)
		require.ErrorIs(t, err, errs.ErrValidation)
		require.Zero(t, f.writer.writes)

		require.Equal(t, 1, f.metrics.count(drepo.EventFlowFailure))
		require.Equal(t, "validate", f.metrics.events[drepo.EventFlowFailure][0][drepo.LabelStage])
		runs, _ := f.catalog.List(ctx, "", "", 10)
		require.Equal(t, models.RunStatusFailed, runs[0].Status)
	})

	t.Run("fetch failure reports the fetch stage", func(t *testing.T) {
		f := newRunnerFixture(t, &fakeAdapter{provider: "newsapi", kind: models.KindNews, err: errs.New(errs.KindNetwork, "newsapi", "down")}, ETLConfig{})
		_, err := f.runner.Run(ctx, models.RunRequest{Source: "news", Symbol: "BTC"})
		var runErr *RunError
		require.ErrorAs(t, err, &runErr)
		require.Equal(t, models.StageFetch, runErr.Stage)
		require.ErrorIs(t, err, errs.ErrNetwork)
	})

	t.Run("unknown source", func(t *testing.T) {
		f := newRunnerFixture(t, &fakeAdapter{provider: "newsapi", kind: models.KindNews}, ETLConfig{})
		_, err := f.runner.Run(ctx, models.RunRequest{Source: "weather", Symbol: "BTC"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown source")
	})

	t.Run("storage failure", func(t *testing.T) {
		f := newRunnerFixture(t, &fakeAdapter{provider: "newsapi", kind: models.KindNews, records: newsRecords()}, ETLConfig{})
		f.writer.err = errs.New(errs.KindStorage, "", "disk full")
		_, err := f.runner.Run(ctx, models.RunRequest{Source: "news", Symbol: "BTC"})
		var runErr *RunError
		require.ErrorAs(t, err, &runErr)
		require.Equal(t, models.StagePersist, runErr.Stage)

		// a failed run is not marked completed
		f.writer.err = nil
		res, err := f.runner.Run(ctx, models.RunRequest{Source: "news", Symbol: "BTC"})
		require.NoError(t, err)
		require.False(t, res.Skipped)
	})

	t.Run("bad window", func(t *testing.T) {
		f := newRunnerFixture(t, &fakeAdapter{provider: "newsapi", kind: models.KindNews}, ETLConfig{})
		_, err := f.runner.Run(ctx, models.RunRequest{Source: "news", Symbol: "BTC", Start: &end, End: &day0})
		var runErr *RunError
		require.ErrorAs(t, err, &runErr)
		require.Equal(t, models.StageRunKey, runErr.Stage)
		require.Zero(t, f.adapter.calls)
	})

	t.Run("held lock rejects a concurrent run", func(t *testing.T) {
		f := newRunnerFixture(t, &fakeAdapter{provider: "newsapi", kind: models.KindNews, records: newsRecords()}, ETLConfig{})
		ledger := f.runner.ledger
		key := BuildRunKey(models.RunKeyInputs{Source: "news", Symbol: "BTC"})
		ok, err := ledger.Acquire(ctx, key, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = f.runner.Run(ctx, models.RunRequest{Source: "news", Symbol: "BTC"})
		require.ErrorIs(t, err, ErrRunInProgress)
	})

	t.Run("quality failure is advisory unless strict", func(t *testing.T) {
		strictCfg := ETLConfig{QualityStrict: true}
		checker := validation.NewExpectationChecker(map[models.Kind][]validation.Expectation{
			models.KindNews: {{Name: "volume_at_least_five", Column: "news_volume", Min: floatPtr(5)}},
		})

		lax := newRunnerFixture(t, &fakeAdapter{provider: "newsapi", kind: models.KindNews, records: newsRecords()}, ETLConfig{}, WithQualityChecker(checker))
		res, err := lax.runner.Run(ctx, models.RunRequest{Source: "news", Symbol: "BTC"})
		require.NoError(t, err)
		require.False(t, res.Quality.Passed)

		strict := newRunnerFixture(t, &fakeAdapter{provider: "newsapi", kind: models.KindNews, records: newsRecords()}, strictCfg, WithQualityChecker(checker))
		_, err = strict.runner.Run(ctx, models.RunRequest{Source: "news", Symbol: "BTC"})
		var runErr *RunError
		require.ErrorAs(t, err, &runErr)
		require.Equal(t, models.StageQuality, runErr.Stage)
		require.Zero(t, strict.writer.writes)
	})

	t.Run("disabled quality checker reports unsupported", func(t *testing.T) {
		f := newRunnerFixture(t, &fakeAdapter{provider: "newsapi", kind: models.KindNews, records: newsRecords()}, ETLConfig{},
			WithQualityChecker(validation.DisabledQualityChecker{}))
		res, err := f.runner.Run(ctx, models.RunRequest{Source: "news", Symbol: "BTC"})
		require.NoError(t, err)
		require.NotNil(t, res.Quality)
		require.False(t, res.Quality.Supported)
	})
}

func TestRunErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &RunError{RunKey: "news-btc-0", Stage: models.StagePersist, Err: inner}
	require.ErrorIs(t, err, inner)
	require.Equal(t, "etl run news-btc-0 failed at persist: boom", err.Error())
}

func floatPtr(v float64) *float64 { return &v }
