package di

import (
	"context"
	"fmt"
	"time"

	"FieldScan/internal/domain/models"
	"FieldScan/internal/domain/repository"
	"FieldScan/internal/handler/api"
	"FieldScan/internal/handler/stream"
	mid "FieldScan/internal/middleware"
	internalrepo "FieldScan/internal/repository"
	"FieldScan/internal/service/finnhub"
	"FieldScan/internal/service/marketdata"
	svcmetrics "FieldScan/internal/service/metrics"
	"FieldScan/internal/service/ratelimit"
	"FieldScan/internal/services/features"
	"FieldScan/internal/services/resolver"
	"FieldScan/internal/services/signal"
	"FieldScan/internal/usecase"
	"FieldScan/pkg/cache"
	pkgch "FieldScan/pkg/clickhouse"
	"FieldScan/pkg/config"
	xhttp "FieldScan/pkg/http"
	pkgkafka "FieldScan/pkg/kafka"
	applogger "FieldScan/pkg/logger"
	"FieldScan/pkg/metrics"
	"FieldScan/pkg/postgres"
	"FieldScan/pkg/scheduler"
	"FieldScan/pkg/server"
	"FieldScan/pkg/sqlite"
	"FieldScan/pkg/tracing"
)

const initTimeout = 15 * time.Second

// ProvideLogger builds the application logger. When Kafka is enabled, error
// entries are aggregated and shipped to the logs topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil && cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates the Prometheus recorder and registers the upstream
// and cache collectors on the default registry.
func ProvideMetrics() repository.Metrics {
	svcmetrics.Register()
	return metrics.New()
}

func ProvideTracing(cfg *config.Config) (*tracing.Provider, error) {
	return tracing.New(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideClickHouseClient connects only when ClickHouse is the bar source or
// the archive is enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Data.Source != "clickhouse" && !cfg.ClickHouse.Archive {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideCache returns a memory cache, or a memory layer over Redis when Redis is enabled.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(2000)), nil
	}
	remote, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(remote,
		cache.WithLayeredMemorySize(500),
		cache.WithLayeredMemoryTTL(time.Minute),
	), nil
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Data.RatePerSec, cfg.Data.Burst)
}

// DataSource is the configured bar source. Listing is nil when the source
// cannot enumerate tickers.
type DataSource struct {
	Raw     repository.MarketData
	Cached  *marketdata.CachedSource
	Listing repository.Universe
}

func ProvideDataSource(
	cfg *config.Config,
	ch *pkgch.Client,
	limiter *ratelimit.Limiter,
	c cache.Service,
	l *applogger.Logger,
) (*DataSource, error) {
	ds := &DataSource{}
	switch cfg.Data.Source {
	case "csv":
		src := marketdata.NewCSVSource(cfg.Data.CSVDir, l)
		ds.Raw, ds.Listing = src, src
	case "clickhouse":
		src := internalrepo.NewCHBarSource(ch, cfg.Data.HistoryDays, l)
		ds.Raw, ds.Listing = src, src
	case "finnhub":
		ds.Raw = finnhub.New(finnhub.Config{
			APIKey:      cfg.Finnhub.APIKey,
			BaseURL:     cfg.Finnhub.BaseURL,
			HistoryDays: cfg.Data.HistoryDays,
			MaxFailures: cfg.Data.Breaker.MaxFailures,
			OpenTimeout: cfg.Data.Breaker.OpenTimeout,
		}, xhttp.NewClient(xhttp.WithTimeout(cfg.Data.Timeout)), limiter, l)
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.Data.Source)
	}
	ds.Cached = marketdata.NewCachedSource(ds.Raw, c, cfg.Data.CacheTTL, l)
	return ds, nil
}

func ProvideMarketData(ds *DataSource) repository.MarketData {
	return ds.Cached
}

func ProvideUniverse(cfg *config.Config, ds *DataSource) repository.Universe {
	return marketdata.ResolvingUniverse{
		List:   cfg.Scan.Universe,
		File:   cfg.Scan.UniverseFile,
		Source: ds.Listing,
	}
}

// ProvideSignalStore opens the configured backend and creates its schema.
func ProvideSignalStore(cfg *config.Config) (repository.SignalStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	var store repository.SignalStore
	switch cfg.Storage.Backend {
	case "memory":
		store = internalrepo.NewMemorySignalStore()
	case "sqlite":
		db, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.Storage.SQLitePath, BusyTimeout: 5 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		store = internalrepo.NewSQLiteSignalStore(db)
	case "postgres":
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{DSN: cfg.Storage.PostgresDSN, MaxConns: 10})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		store = internalrepo.NewPgSignalStore(postgres.NewPgTxManager(pool))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init %s store: %w", cfg.Storage.Backend, err)
	}
	return store, nil
}

// ProvideArchive returns the ClickHouse archive, or nil when disabled.
func ProvideArchive(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (*internalrepo.CHArchive, error) {
	if !cfg.ClickHouse.Archive || ch == nil {
		return nil, nil
	}
	archive := internalrepo.NewCHArchive(ch, l)
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := archive.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse archive schema: %w", err)
	}
	return archive, nil
}

// ProvidePublishPipeline buffers Kafka publishing, or returns nil when Kafka is disabled.
func ProvidePublishPipeline(
	cfg *config.Config,
	producer *pkgkafka.Producer,
	m repository.Metrics,
	l *applogger.Logger,
) *mid.PublishPipeline {
	if producer == nil {
		return nil
	}
	pub := internalrepo.NewKafkaPublisher(producer, cfg.Kafka.SignalsTopic, cfg.Kafka.TradesTopic)
	return mid.NewPublishPipeline(pub, m, l,
		mid.WithBufferSize(cfg.Kafka.Pipeline.BufferSize),
		mid.WithRetry(cfg.Kafka.Pipeline.RetryMax, cfg.Kafka.Pipeline.BackoffMin, cfg.Kafka.Pipeline.BackoffMax),
	)
}

func ProvideResultProcessor(
	store repository.SignalStore,
	archive *internalrepo.CHArchive,
	pipe *mid.PublishPipeline,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ResultProcessor {
	// typed nils must not reach the interface fields
	var (
		a repository.Archive
		p repository.Publisher
	)
	if archive != nil {
		a = archive
	}
	if pipe != nil {
		p = pipe
	}
	return usecase.NewResultProcessor(store, a, p, m, l)
}

// ProvidePipelineConfig sanitizes the engine settings into the ticker pipeline config.
func ProvidePipelineConfig(cfg *config.Config, l *applogger.Logger) (usecase.PipelineConfig, error) {
	e := cfg.Engine
	e.Sanitize(l)
	tie, err := resolver.ParseTieBreak(e.TieBreak)
	if err != nil {
		return usecase.PipelineConfig{}, err
	}
	return usecase.PipelineConfig{
		Features: features.Config{
			InsiderLookbackDays: e.InsiderLookbackDays,
			HerdingLookbackDays: e.HerdingLookbackDays,
		},
		NormWindow:    e.NormWindow,
		Percentile:    e.Percentile,
		MassThreshold: e.MassThreshold,
		MinScoreFloor: e.MinScoreFloor,
		Signal: signal.Config{
			Setup:        e.SetupLabel,
			TPMultiplier: e.TPMultiplier,
			SLMultiplier: e.SLMultiplier,
		},
		MaxHold:       e.MaxHoldDays,
		TieBreak:      tie,
		DedupeWindow:  e.DedupeWindow,
		HistoryBuffer: e.HistoryBuffer,
	}, nil
}

func ProvideTickerPipeline(pc usecase.PipelineConfig, store repository.SignalStore) *usecase.TickerPipeline {
	return usecase.NewTickerPipeline(pc, store, nil)
}

func ProvideOrchestrator(
	cfg *config.Config,
	data repository.MarketData,
	universe repository.Universe,
	pipeline *usecase.TickerPipeline,
	processor *usecase.ResultProcessor,
	m repository.Metrics,
	tracer *tracing.Provider,
	limiter *ratelimit.Limiter,
	l *applogger.Logger,
) *usecase.ScanOrchestrator {
	live := 0
	if cfg.Data.Source == "finnhub" {
		live = limiter.Burst()
	}
	return usecase.NewScanOrchestrator(data, universe, pipeline, processor, usecase.NewScanStatus(0), m, tracer, l,
		usecase.OrchestratorConfig{Workers: cfg.Scan.Workers, LiveConcurrency: live})
}

func ProvideReviewer(
	store repository.SignalStore,
	data repository.MarketData,
	pipeline *usecase.TickerPipeline,
	processor *usecase.ResultProcessor,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.SignalReviewer {
	return usecase.NewSignalReviewer(store, data, pipeline.Resolver(), processor, m, l)
}

func ProvideHTTPServer(
	cfg *config.Config,
	orchestrator *usecase.ScanOrchestrator,
	reviewer *usecase.SignalReviewer,
	store repository.SignalStore,
	l *applogger.Logger,
) *xhttp.Server {
	handler := api.NewScanEchoHandler(l, orchestrator, reviewer, store)
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(true),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path))
	}
	return xhttp.NewServer(handler, l, opts...)
}

// ProvideKafkaConsumer reads scan requests, or returns nil when Kafka or the
// requests topic is disabled.
func ProvideKafkaConsumer(
	cfg *config.Config,
	orchestrator *usecase.ScanOrchestrator,
	l *applogger.Logger,
) (*pkgkafka.Consumer, error) {
	cc := cfg.Kafka.Consumer
	if !cfg.Kafka.Enabled || cc.RequestsTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cc.GroupID),
		pkgkafka.WithConsumerWorkers(cc.Workers),
		pkgkafka.WithConsumerRetry(cc.RetryMax, cc.BackoffMin, cc.BackoffMax),
		pkgkafka.WithConsumerDLQ(cc.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(stream.NewScanRequestHandler(cc.RequestsTopic, orchestrator, l))
	return consumer, nil
}

func ProvideScheduler(l *applogger.Logger) *scheduler.Scheduler {
	return scheduler.New(l)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	orchestrator *usecase.ScanOrchestrator,
	reviewer *usecase.SignalReviewer,
	processor *usecase.ResultProcessor,
	store repository.SignalStore,
	ds *DataSource,
	c cache.Service,
	ch *pkgch.Client,
	pipe *mid.PublishPipeline,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	sched *scheduler.Scheduler,
	httpServer *xhttp.Server,
	tracer *tracing.Provider,
) *server.App {
	return server.New(server.Deps{
		Config:       cfg,
		Logger:       l,
		Orchestrator: orchestrator,
		Reviewer:     reviewer,
		Processor:    processor,
		Store:        store,
		Data:         ds.Cached,
		Cache:        c,
		ClickHouse:   ch,
		Pipeline:     pipe,
		Consumer:     consumer,
		Producer:     producer,
		Scheduler:    sched,
		HTTP:         httpServer,
		Tracer:       tracer,
		DefaultMode:  models.ScanMode(cfg.Scan.Mode),
	})
}
