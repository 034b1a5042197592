package di

import (
	"context"
	"fmt"
	"time"

	domrepo "ShrimpCast/internal/domain/repository"
	"ShrimpCast/internal/handler/api"
	"ShrimpCast/internal/handler/ws"
	internalrepo "ShrimpCast/internal/repository"
	"ShrimpCast/internal/services/analytics"
	"ShrimpCast/internal/usecase"
	"ShrimpCast/pkg/cache"
	pkgch "ShrimpCast/pkg/clickhouse"
	"ShrimpCast/pkg/config"
	pkgkafka "ShrimpCast/pkg/kafka"
	"ShrimpCast/pkg/logger"
	"ShrimpCast/pkg/metrics"
	"ShrimpCast/pkg/queue"
	"ShrimpCast/pkg/server"
	"ShrimpCast/pkg/sqlite"
)

// ProvideLogger creates the root logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.Named("shrimpcast"), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideStore opens the configured backend and migrates its schema.
func ProvideStore(cfg *config.Config, l *logger.Logger) (domrepo.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch cfg.Store.Backend {
	case "memory":
		return internalrepo.NewMemoryStore(), nil

	case "sqlite":
		client, err := sqlite.NewClient(
			sqlite.WithPath(cfg.Store.SQLitePath),
			sqlite.WithBusyTimeout(cfg.Store.SQLiteBusyTimeout),
			sqlite.WithWAL(true),
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite client: %w", err)
		}
		store := internalrepo.NewSQLiteStore(client, l)
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("sqlite schema: %w", err)
		}
		return store, nil

	case "clickhouse":
		client, err := pkgch.NewClient(
			pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithPool(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns, 30*time.Minute),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.MaxExecutionTime),
			pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}
		store := internalrepo.NewClickHouseStore(client, l)
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// ProvideRedisCache dials Redis when it is enabled; nil otherwise.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache layers an in-process LRU over Redis, or uses the LRU alone.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache, l *logger.Logger) (cache.Service, error) {
	if rc == nil {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MaxSize), cache.WithMemoryTTL(cfg.Cache.TTL)), nil
	}
	lc, err := cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(cfg.Cache.MaxSize),
		cache.WithLayeredLogger(l.Named("cache")),
	)
	if err != nil {
		return nil, fmt.Errorf("layered cache: %w", err)
	}
	return lc, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher publishes domain events to Kafka when available.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.EventPublisher {
	if producer == nil {
		return internalrepo.NopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topics)
}

// ProvideKafkaConsumer creates the ingest consumer, or nil when Kafka is off.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	opts := []pkgkafka.ConsumerOption{
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithWorkers(cfg.Kafka.Consumer.Workers, cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerLogger(l),
	}
	if cfg.Kafka.Consumer.DeadLetter {
		opts = append(opts, pkgkafka.WithDeadLetter(cfg.Kafka.Topics.DeadLetter))
	}
	consumer, err := pkgkafka.NewConsumer(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideQueue uses Redis for recompute jobs when it is enabled and an
// in-process queue otherwise.
func ProvideQueue(cfg *config.Config, rc *cache.RedisCache, l *logger.Logger) queue.Queue {
	qc := queue.QueueConfig{
		Workers:      cfg.Queue.Workers,
		RetryLimit:   2,
		PollInterval: cfg.Queue.PollInterval,
	}
	if rc != nil {
		return queue.NewRedisQueue(l.Named("queue"), qc, rc.Client(), cfg.Queue.Name)
	}
	return queue.NewLocalQueue(l.Named("queue"), qc, 256)
}

func ProvideHub(l *logger.Logger) *ws.Hub {
	return ws.NewHub(l)
}

func ProvideTrendForecaster(cfg *config.Config) *analytics.TrendForecaster {
	return analytics.NewTrendForecaster(
		analytics.WithEMAAlpha(cfg.Forecast.EMAAlpha),
		analytics.WithEMADamping(cfg.Forecast.EMADamping),
	)
}

func ProvideCorrelationFitter() *analytics.CorrelationFitter {
	return analytics.NewCorrelationFitter()
}

func ProvideDispatchComposer(cfg *config.Config) *analytics.DispatchComposer {
	return analytics.NewDispatchComposer(analytics.WithFallbackRatios(cfg.Forecast.HeadlessRatio, cfg.Forecast.DefaultRatio))
}

func ProvidePurchaseOptimizer(cfg *config.Config) (*analytics.PurchaseOptimizer, error) {
	return analytics.NewPurchaseOptimizer(cfg.Purchase.MinimumMargin, cfg.Purchase.RecommendedMargin)
}

func ProvideSourceConsolidator(cfg *config.Config) (*analytics.SourceConsolidator, error) {
	var opts []analytics.ConsolidatorOption
	if len(cfg.Consolidation.SourceWeights) > 0 {
		opts = append(opts, analytics.WithSourceWeights(cfg.Consolidation.SourceWeights))
	}
	if len(cfg.Consolidation.UnitValuePriority) > 0 {
		opts = append(opts, analytics.WithUnitValuePriority(cfg.Consolidation.UnitValuePriority))
	}
	if len(cfg.Consolidation.Calibers) > 0 {
		opts = append(opts, analytics.WithCalibers(cfg.Consolidation.Calibers))
	}
	return analytics.NewSourceConsolidator(opts...)
}

// ProvideUsecaseOptions collects the ambient dependencies shared by services.
func ProvideUsecaseOptions(
	cfg *config.Config,
	c cache.Service,
	events domrepo.EventPublisher,
	hub *ws.Hub,
	m domrepo.Metrics,
	l *logger.Logger,
) []usecase.Option {
	opts := []usecase.Option{
		usecase.WithEvents(events),
		usecase.WithBroadcaster(hub),
		usecase.WithMetrics(m),
		usecase.WithLogger(l),
		usecase.WithLookbackDays(cfg.Forecast.LookbackDays),
		usecase.WithBatchWorkers(cfg.Forecast.BatchWorkers),
	}
	if cfg.Cache.Enabled {
		opts = append(opts, usecase.WithCache(c, cfg.Cache.TTL))
	}
	return opts
}

func ProvideForecastService(
	store domrepo.Store,
	trend *analytics.TrendForecaster,
	fitter *analytics.CorrelationFitter,
	composer *analytics.DispatchComposer,
	optimizer *analytics.PurchaseOptimizer,
	opts []usecase.Option,
) *usecase.ForecastService {
	return usecase.NewForecastService(store, trend, fitter, composer, optimizer, opts...)
}

func ProvidePriceIngestor(store domrepo.Store, consolidator *analytics.SourceConsolidator, opts []usecase.Option) *usecase.PriceIngestor {
	return usecase.NewPriceIngestor(store, consolidator, opts...)
}

func ProvideRecomputeJob(svc *usecase.ForecastService, c cache.Service) *usecase.CorrelationRecomputeJob {
	return usecase.NewCorrelationRecomputeJob(svc, c)
}

// ProvideKafkaHandlers returns the ingest handlers, or none when Kafka is off.
func ProvideKafkaHandlers(cfg *config.Config, ingestor *usecase.PriceIngestor) []pkgkafka.MessageHandler {
	if !cfg.Kafka.Enabled {
		return nil
	}
	return []pkgkafka.MessageHandler{
		usecase.NewDispatchPricesHandler(cfg.Kafka.Topics.DispatchPrices, ingestor),
		usecase.NewSourceQuotesHandler(cfg.Kafka.Topics.SourceQuotes, ingestor),
	}
}

func ProvideAPIHandler(
	cfg *config.Config,
	l *logger.Logger,
	svc *usecase.ForecastService,
	ingestor *usecase.PriceIngestor,
	q queue.Queue,
) *api.ForecastEchoHandler {
	return api.NewForecastEchoHandler(l, svc, ingestor, q,
		api.WithRateLimit(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.Refill))
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	store domrepo.Store,
	c cache.Service,
	producer *pkgkafka.Producer,
	consumer *pkgkafka.Consumer,
	handlers []pkgkafka.MessageHandler,
	q queue.Queue,
	job *usecase.CorrelationRecomputeJob,
	apiHandler *api.ForecastEchoHandler,
	hub *ws.Hub,
	events domrepo.EventPublisher,
) *server.App {
	return server.New(cfg, l, server.Deps{
		Store:    store,
		Cache:    c,
		Producer: producer,
		Consumer: consumer,
		Handlers: handlers,
		Queue:    q,
		Jobs:     []queue.Job{job},
		API:      apiHandler,
		Hub:      hub,
		Events:   events,
	})
}
