package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"AltPull/internal/domain/errs"
	"AltPull/internal/domain/models"
	drepo "AltPull/internal/domain/repository"
	applogger "AltPull/pkg/logger"
)

// ErrRunInProgress is returned when another worker holds the run key's lock.
var ErrRunInProgress = errors.New("run already in progress")

// ETLConfig tunes the ETL flow.
type ETLConfig struct {
	QualityChecks   bool          `yaml:"quality_checks" default:"true"`
	QualityStrict   bool          `yaml:"quality_strict"`
	RequireNonEmpty bool          `yaml:"require_non_empty"`
	LockTTL         time.Duration `yaml:"lock_ttl" default:"15m"`
	CompletedTTL    time.Duration `yaml:"completed_ttl" default:"168h"`
	RunTimeout      time.Duration `yaml:"run_timeout" default:"10m"`
}

// RunError reports the run key and stage of a failed run. Validation failures carry the full report.
type RunError struct {
	RunKey     string
	Stage      models.Stage
	Err        error
	Validation *models.ValidationReport
}

func (e *RunError) Error() string {
	return fmt.Sprintf("etl run %s failed at %s: %v", e.RunKey, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Sources maps a logical source name to its (usually fallback-wrapped) adapter.
type Sources map[string]drepo.Adapter

// Lookup finds the adapter for source, case-insensitively.
func (s Sources) Lookup(source string) (drepo.Adapter, error) {
	if a, ok := s[strings.ToLower(source)]; ok {
		return a, nil
	}
	return nil, errs.New(errs.KindConfig, "", fmt.Sprintf("unknown source %q (known: %s)", source, strings.Join(s.Names(), ", ")))
}

// Names returns the sorted source names.
func (s Sources) Names() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ETLOption configures ETLRunner.
type ETLOption func(*ETLRunner)

func WithRunLedger(l drepo.RunLedger) ETLOption { return func(r *ETLRunner) { r.ledger = l } }

func WithRunCatalog(c drepo.RunCatalog) ETLOption { return func(r *ETLRunner) { r.catalog = c } }

func WithRunPublisher(p drepo.RunPublisher) ETLOption { return func(r *ETLRunner) { r.publisher = p } }

func WithQualityChecker(q drepo.QualityChecker) ETLOption {
	return func(r *ETLRunner) { r.quality = q }
}

func WithETLMetrics(m drepo.Metrics) ETLOption { return func(r *ETLRunner) { r.metrics = m } }

func WithETLLogger(l *applogger.Logger) ETLOption { return func(r *ETLRunner) { r.logger = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ETLOption { return func(r *ETLRunner) { r.now = now } }

// ETLRunner drives run key → idempotency check → lock → fetch → validate → quality → persist.
type ETLRunner struct {
	cfg       ETLConfig
	sources   Sources
	validator drepo.SchemaValidator
	writer    drepo.PartitionWriter
	quality   drepo.QualityChecker
	ledger    drepo.RunLedger
	catalog   drepo.RunCatalog
	publisher drepo.RunPublisher
	metrics   drepo.Metrics
	logger    *applogger.Logger
	now       func() time.Time
}

func NewETLRunner(cfg ETLConfig, sources Sources, validator drepo.SchemaValidator, writer drepo.PartitionWriter, opts ...ETLOption) *ETLRunner {
	r := &ETLRunner{
		cfg:       cfg,
		sources:   sources,
		validator: validator,
		writer:    writer,
		metrics:   drepo.NoopMetrics{},
		logger:    applogger.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cfg.LockTTL <= 0 {
		r.cfg.LockTTL = 15 * time.Minute
	}
	return r
}

// Sources returns the configured source registry.
func (r *ETLRunner) Sources() Sources { return r.sources }

// Run executes one ingestion request. Flow metrics and run history are recorded on every exit path.
func (r *ETLRunner) Run(ctx context.Context, req models.RunRequest) (res *models.ETLResult, err error) {
	started := r.now()
	source := strings.ToLower(strings.TrimSpace(req.Source))
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	runKey := BuildRunKey(req.Inputs())

	res = &models.ETLResult{
		RunKey:    runKey,
		FlowRunID: uuid.NewString(),
		Source:    source,
		Symbol:    symbol,
		StartedAt: started.UTC(),
	}
	log := r.logger.With(
		applogger.String("run_key", runKey),
		applogger.String("flow_run_id", res.FlowRunID),
		applogger.String("source", source),
		applogger.String("symbol", symbol),
	)
	stage := models.StageRunKey

	defer func() {
		res.Duration = r.now().Sub(started)
		r.finish(ctx, log, res, stage, err)
	}()

	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	fail := func(e error) error {
		log.Error("etl stage failed", applogger.String("stage", string(stage)), applogger.Error(e))
		return &RunError{RunKey: runKey, Stage: stage, Err: e}
	}

	if err := validateWindow(source, symbol, req.Start, req.End); err != nil {
		return res, fail(err)
	}
	log.Info("etl run started", applogger.String("stage", string(stage)))

	if r.ledger != nil {
		stage = models.StageLock
		if !req.Force {
			prior, done, lerr := r.ledger.Completed(ctx, runKey)
			if lerr != nil {
				log.Warn("completed-run lookup failed", applogger.Error(lerr))
			} else if done {
				res = skippedResult(prior, res)
				log.Info("run already completed; skipping")
				return res, nil
			}
		}

		ok, lerr := r.ledger.Acquire(ctx, runKey, r.cfg.LockTTL)
		if lerr != nil {
			return res, fail(lerr)
		}
		if !ok {
			return res, fail(ErrRunInProgress)
		}
		defer func() {
			if rerr := r.ledger.Release(context.WithoutCancel(ctx), runKey); rerr != nil {
				log.Warn("release run lock", applogger.Error(rerr))
			}
		}()
	}

	stage = models.StageFetch
	adapter, err := r.sources.Lookup(source)
	if err != nil {
		return res, fail(err)
	}
	res.Provider = adapter.Provider()
	slice, err := adapter.Fetch(ctx, symbol, req.Start, req.End)
	if err != nil {
		return res, fail(err)
	}
	res.RowsIngested = slice.Len()
	log.Info("fetched rows", applogger.String("stage", string(stage)), applogger.Int("rows", slice.Len()))

	stage = models.StageValidate
	report := r.validator.Validate(ctx, slice)
	res.Validation = report
	if !report.Passed {
		log.Warn("schema validation failed",
			applogger.String("stage", string(stage)),
			applogger.Int("violations", len(report.Errors)),
			applogger.Strings("errors", report.Errors),
		)
		return res, &RunError{
			RunKey:     runKey,
			Stage:      stage,
			Err:        errs.New(errs.KindValidation, res.Provider, fmt.Sprintf("%d schema violations", len(report.Errors))),
			Validation: &report,
		}
	}

	stage = models.StageQuality
	if r.quality != nil && !slice.Empty() {
		qr, qerr := r.quality.Check(ctx, slice)
		res.Quality = qr
		switch {
		case errors.Is(qerr, errs.ErrUnsupported):
			log.Info("quality checks unsupported", applogger.String("stage", string(stage)))
		case qerr != nil:
			if r.cfg.QualityStrict {
				return res, fail(qerr)
			}
			log.Warn("quality checks errored", applogger.Error(qerr))
		case !qr.Passed:
			if r.cfg.QualityStrict {
				return res, fail(errs.New(errs.KindValidation, res.Provider, "quality expectations failed"))
			}
			log.Warn("quality checks failed", applogger.Any("details", qr.Details))
		default:
			log.Info("quality checks passed", applogger.String("stage", string(stage)))
		}
	}

	stage = models.StagePersist
	storage, err := r.writer.Write(ctx, source, slice)
	if err != nil {
		return res, fail(err)
	}
	res.Storage = storage
	log.Info("persisted partitions",
		applogger.String("stage", string(stage)),
		applogger.Int("rows", storage.RowsWritten),
		applogger.Int("partitions", storage.PartitionsWritten),
		applogger.String("base_path", storage.BasePath),
	)

	stage = models.StageDone
	if r.ledger != nil {
		if merr := r.ledger.MarkCompleted(context.WithoutCancel(ctx), res, r.cfg.CompletedTTL); merr != nil {
			log.Warn("mark run completed", applogger.Error(merr))
		}
	}
	return res, nil
}

func (r *ETLRunner) finish(ctx context.Context, log *applogger.Logger, res *models.ETLResult, stage models.Stage, err error) {
	labels := map[string]string{drepo.LabelSource: res.Source, drepo.LabelSymbol: res.Symbol}
	r.metrics.Record(drepo.EventFlowDuration, labels, res.Duration.Seconds())

	rec := models.RunRecord{
		RunKey:     res.RunKey,
		FlowRunID:  res.FlowRunID,
		Source:     res.Source,
		Symbol:     res.Symbol,
		Stage:      stage,
		Rows:       res.Storage.RowsWritten,
		Partitions: res.Storage.PartitionsWritten,
		BasePath:   res.Storage.BasePath,
		StartedAt:  res.StartedAt,
		Duration:   res.Duration,
	}
	switch {
	case err != nil:
		failLabels := map[string]string{drepo.LabelSource: res.Source, drepo.LabelSymbol: res.Symbol, drepo.LabelStage: string(stage)}
		r.metrics.Record(drepo.EventFlowFailure, failLabels, 1)
		rec.Status = models.RunStatusFailed
		rec.Error = err.Error()
	case res.Skipped:
		r.metrics.Record(drepo.EventFlowSuccess, labels, 1)
		rec.Status = models.RunStatusSkipped
	default:
		r.metrics.Record(drepo.EventFlowSuccess, labels, 1)
		rec.Status = models.RunStatusSuccess
		log.Info("etl run finished", applogger.Duration("duration_ms", res.Duration))
	}

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if r.catalog != nil {
		if cerr := r.catalog.Record(bg, rec); cerr != nil {
			log.Warn("record run history", applogger.Error(cerr))
		}
	}
	if r.publisher != nil {
		if perr := r.publisher.PublishRun(bg, rec); perr != nil {
			log.Warn("publish run event", applogger.Error(perr))
		}
	}
}

func validateWindow(source, symbol string, start, end *time.Time) error {
	switch {
	case source == "":
		return errs.New(errs.KindValidation, "", "source is required")
	case symbol == "":
		return errs.New(errs.KindValidation, "", "symbol is required")
	case start != nil && end != nil && end.Before(*start):
		return errs.New(errs.KindValidation, "", "end must not be before start")
	}
	return nil
}

func skippedResult(prior *models.ETLResult, current *models.ETLResult) *models.ETLResult {
	out := *prior
	out.FlowRunID = current.FlowRunID
	out.StartedAt = current.StartedAt
	out.Skipped = true
	return &out
}
