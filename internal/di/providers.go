package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/wire"

	"AltPull/internal/domain/models"
	"AltPull/internal/domain/repository"
	"AltPull/internal/handler/api"
	internalrepo "AltPull/internal/repository"
	"AltPull/internal/scheduler"
	"AltPull/internal/service/altdata"
	respcache "AltPull/internal/service/cache"
	"AltPull/internal/services/validation"
	"AltPull/internal/usecase"
	"AltPull/pkg/cache"
	pkgch "AltPull/pkg/clickhouse"
	"AltPull/pkg/config"
	xhttp "AltPull/pkg/http"
	pkgkafka "AltPull/pkg/kafka"
	applogger "AltPull/pkg/logger"
	"AltPull/pkg/metrics"
	"AltPull/pkg/server"
)

// CoreSet builds the ETL runner and aligner with their storage, ledger, catalog and publisher.
var CoreSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideCache,
	ProvideRunLedger,
	ProvideClickHouseClient,
	ProvideRunCatalog,
	ProvideKafkaProducer,
	ProvideRunPublisher,
	ProvideSources,
	ProvidePartitionWriter,
	ProvideSchemaValidator,
	ProvideQualityChecker,
	ProvideETLRunner,
	ProvideFeatureAligner,
)

// ServeSet adds the HTTP API, run request consumer and scheduler.
var ServeSet = wire.NewSet(
	CoreSet,
	ProvideHealthChecks,
	ProvideHTTPHandler,
	ProvideHTTPServer,
	ProvideKafkaConsumer,
	ProvideRunRequestHandler,
	ProvideScheduler,
	ProvideScheduledIngest,
	ProvideApp,
)

// Runtime is the core graph used by the one-shot CLI commands.
type Runtime struct {
	Logger  *applogger.Logger
	Runner  *usecase.ETLRunner
	Aligner *usecase.FeatureAligner
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCache returns Redis when enabled, otherwise a process-local cache.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		l.Info("redis disabled; using in-memory run ledger")
		mc := cache.NewMemoryCache(cache.WithMemoryMaxSize(10_000))
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := cache.NewRedisCache(cache.FromConfig(cfg.Redis)...)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	l.Info("redis connected", applogger.String("host", cfg.Redis.Host), applogger.Int("port", cfg.Redis.Port))
	return rc, func() {
		if err := rc.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}, nil
}

// ProvideRunLedger guards run keys with the cache.
func ProvideRunLedger(c cache.Service) repository.RunLedger {
	return internalrepo.NewCacheRunLedger(c)
}

// ProvideClickHouseClient connects and creates the run catalog schema; nil when disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(pkgch.FromConfig(cfg.ClickHouse)...)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.RunCatalogSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse connected and schema ready", applogger.String("database", cfg.ClickHouse.Database))

	return client, func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}, nil
}

// ProvideRunCatalog stores history in ClickHouse, or in memory without it.
func ProvideRunCatalog(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) repository.RunCatalog {
	if ch == nil {
		return internalrepo.NewMemoryRunCatalog(1000)
	}
	store := internalrepo.NewCHRunCatalog(ch, cfg.ClickHouse.Database)
	store.SetLogger(l)
	return store
}

// ProvideKafkaProducer creates a Kafka producer; nil when disabled.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(cfg.Kafka.ProducerOptions()...)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() {
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}, nil
}

// ProvideRunPublisher announces finished runs on Kafka when a producer exists.
func ProvideRunPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.RunPublisher {
	if producer == nil {
		return internalrepo.NopRunPublisher{}
	}
	return internalrepo.NewKafkaRunPublisher(producer, cfg.Kafka.RunEventTopic)
}

// ProvideSources builds one resilient client per provider and one fallback chain per source.
func ProvideSources(cfg *config.Config, m repository.Metrics, l *applogger.Logger) (usecase.Sources, error) {
	adapters := make(map[string]repository.Adapter, len(cfg.Providers))
	for _, p := range cfg.Providers {
		a, err := buildAdapter(p, m, l)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.Name, err)
		}
		adapters[p.Name] = a
	}

	sources := make(usecase.Sources, len(cfg.Sources))
	for source, chain := range cfg.Sources {
		members := make([]repository.Adapter, 0, len(chain))
		for _, name := range chain {
			members = append(members, adapters[name])
		}
		fb, err := altdata.NewFallbackAdapter(source, members,
			altdata.WithRequireNonEmpty(cfg.ETL.RequireNonEmpty),
			altdata.WithFallbackMetrics(m),
			altdata.WithFallbackLogger(l),
		)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", source, err)
		}
		sources[strings.ToLower(source)] = fb
	}
	return sources, nil
}

func buildAdapter(p config.ProviderConfig, m repository.Metrics, l *applogger.Logger) (repository.Adapter, error) {
	client, err := altdata.NewClient(altdata.ClientConfig{
		Provider:       p.Name,
		BaseURL:        p.BaseURL,
		Timeout:        p.Timeout,
		DefaultHeaders: p.Headers,
		RateLimit:      p.RateLimit,
		Retry:          p.Retry,
		Breaker:        p.Breaker,
	}, altdata.WithMetrics(m), altdata.WithLogger(l))
	if err != nil {
		return nil, err
	}
	acfg := altdata.AdapterConfig{
		Endpoint:     p.Endpoint,
		Interval:     p.Interval,
		APIKey:       p.APIKey,
		AuthHeader:   p.AuthHeader,
		Language:     p.Language,
		PageSize:     p.PageSize,
		ExtraFilters: p.ExtraFilters,
	}
	kind, err := models.ParseKind(p.Kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case models.KindNews:
		return altdata.NewNewsAdapter(client, acfg)
	case models.KindOnChain:
		return altdata.NewOnChainAdapter(client, acfg)
	default:
		return nil, fmt.Errorf("unsupported kind %q", p.Kind)
	}
}

// ProvidePartitionWriter creates the parquet partition writer.
func ProvidePartitionWriter(cfg *config.Config, m repository.Metrics, l *applogger.Logger) (*internalrepo.ParquetPartitionWriter, error) {
	return internalrepo.NewParquetPartitionWriter(cfg.Storage,
		internalrepo.WithPartitionMetrics(m),
		internalrepo.WithPartitionLogger(l),
	)
}

// ProvideSchemaValidator creates the record schema validator.
func ProvideSchemaValidator() *validation.SchemaValidator {
	return validation.NewSchemaValidator()
}

// ProvideQualityChecker picks the expectation checker or the disabled capability.
func ProvideQualityChecker(cfg *config.Config) repository.QualityChecker {
	if !cfg.ETL.QualityChecks {
		return validation.DisabledQualityChecker{}
	}
	return validation.NewExpectationChecker(nil)
}

// ProvideETLRunner assembles the ETL flow.
func ProvideETLRunner(
	cfg *config.Config,
	sources usecase.Sources,
	validator *validation.SchemaValidator,
	writer *internalrepo.ParquetPartitionWriter,
	quality repository.QualityChecker,
	ledger repository.RunLedger,
	catalog repository.RunCatalog,
	publisher repository.RunPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ETLRunner {
	return usecase.NewETLRunner(cfg.ETL, sources, validator, writer,
		usecase.WithQualityChecker(quality),
		usecase.WithRunLedger(ledger),
		usecase.WithRunCatalog(catalog),
		usecase.WithRunPublisher(publisher),
		usecase.WithETLMetrics(m),
		usecase.WithETLLogger(l),
	)
}

// ProvideFeatureAligner aligns live or stored sources.
func ProvideFeatureAligner(cfg *config.Config, sources usecase.Sources, writer *internalrepo.ParquetPartitionWriter, l *applogger.Logger) *usecase.FeatureAligner {
	return usecase.NewFeatureAligner(sources, writer, cfg.Align.Concurrency, l)
}

// ProvideHealthChecks probes the optional backends that are configured.
func ProvideHealthChecks(c cache.Service, ch *pkgch.Client) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{}
	if rc, ok := c.(*cache.RedisCache); ok {
		checks["redis"] = func(ctx context.Context) error { return rc.Client().Ping(ctx).Err() }
	}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	return checks
}

// ProvideHTTPHandler creates the ETL API handler. Aligned responses are cached in Redis when it
// is enabled so replicas share them.
func ProvideHTTPHandler(
	cfg *config.Config,
	l *applogger.Logger,
	runner *usecase.ETLRunner,
	catalog repository.RunCatalog,
	aligner *usecase.FeatureAligner,
	checks map[string]api.HealthCheck,
	c cache.Service,
) *api.ETLEchoHandler {
	h := api.NewETLEchoHandler(l, runner, catalog, aligner, checks)
	if cfg.Align.CacheTTL <= 0 {
		return h
	}
	var rc respcache.BytesCache = respcache.NewTTLCache(cfg.Align.CacheEntries)
	if redisCache, ok := c.(*cache.RedisCache); ok {
		rc = respcache.NewRedisCache(redisCache.Client(), cfg.Redis.Prefix+":resp:")
	}
	h.SetResponseCache(rc, cfg.Align.CacheTTL)
	return h
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.ETLEchoHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithServerLogger(l),
	)
}

// ProvideKafkaConsumer creates the run request consumer; nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	opts := append(cfg.Kafka.ConsumerOptions(), pkgkafka.WithConsumerLogger(l))
	consumer, err := pkgkafka.NewConsumer(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.LoggingHook{Logger: l}))
	return consumer, nil
}

// ProvideRunRequestHandler handles run requests from Kafka.
func ProvideRunRequestHandler(cfg *config.Config, runner *usecase.ETLRunner, l *applogger.Logger) *usecase.KafkaRunRequestHandler {
	return usecase.NewKafkaRunRequestHandler(cfg.Kafka.RunRequestTopic, runner, l)
}

// ProvideScheduler creates the ingestion scheduler; nil when disabled.
func ProvideScheduler(cfg *config.Config, l *applogger.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Schedule.Enabled || len(cfg.Schedule.Jobs) == 0 {
		return nil, nil
	}
	return scheduler.New(scheduler.Options{
		Interval:     cfg.Schedule.Interval,
		AlignToStart: cfg.Schedule.AlignToStart,
		StartupDelay: cfg.Schedule.StartupDelay,
	}, l)
}

// ProvideScheduledIngest turns ticks into runs over each job's lookback window.
func ProvideScheduledIngest(cfg *config.Config, runner *usecase.ETLRunner, l *applogger.Logger) *usecase.ScheduledIngest {
	return usecase.NewScheduledIngest(runner, cfg.Schedule.Jobs, l)
}

// ProvideApp creates the serve lifecycle.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaRunRequestHandler,
	sched *scheduler.Scheduler,
	ingest *usecase.ScheduledIngest,
	catalog repository.RunCatalog,
) *server.App {
	opts := []server.Option{
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		server.WithClosers(server.Closer{Name: "run_catalog", Close: catalog.Close}),
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer, kh))
	}
	if sched != nil {
		opts = append(opts, server.WithScheduler(sched, ingest.Tick))
	}
	return server.New(l, srv, opts...)
}
