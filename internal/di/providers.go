package di

import (
	"context"
	"fmt"
	"time"

	"BarPull/internal/domain/repository"
	"BarPull/internal/handler/api"
	internalrepo "BarPull/internal/repository"
	"BarPull/internal/scheduler"
	"BarPull/internal/service/provider"
	"BarPull/internal/service/ratelimit"
	"BarPull/internal/service/registry"
	"BarPull/internal/service/symbols"
	"BarPull/internal/usecase"
	"BarPull/pkg/cache"
	pkgch "BarPull/pkg/clickhouse"
	"BarPull/pkg/config"
	xhttp "BarPull/pkg/http"
	pkgkafka "BarPull/pkg/kafka"
	"BarPull/pkg/logger"
	"BarPull/pkg/metrics"
	"BarPull/pkg/postgres"
	"BarPull/pkg/queue"
	"BarPull/pkg/server"
)

const initTimeout = 30 * time.Second

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// closer turns a Close method into a wire cleanup that logs failures.
func closer(log *logger.Logger, name string, closeFn func() error) func() {
	return func() {
		if err := closeFn(); err != nil {
			log.Warn("close error", logger.String("resource", name), logger.Error(err))
		}
	}
}

// ProvideStore opens the configured backend and applies its schema.
func ProvideStore(cfg *config.Config, log *logger.Logger) (repository.Store, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	var store repository.Store
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Store.Postgres.DSN,
			postgres.WithMaxConns(cfg.Store.Postgres.MaxConns),
			postgres.WithMinConns(cfg.Store.Postgres.MinConns),
			postgres.WithConnLifetime(cfg.Store.Postgres.ConnLifetime),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		store = internalrepo.NewPostgresStore(pool, log)
	case "clickhouse":
		client, err := pkgch.NewClient(ctx, clickHouseOptions(cfg)...)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		store = internalrepo.NewClickHouseStore(client, log)
	default:
		log.Warn("using in-memory store; bars are lost on restart")
		store = internalrepo.NewMemoryStore()
	}

	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("%s schema: %w", cfg.Store.Backend, err)
	}
	log.Info("store ready", logger.String("backend", cfg.Store.Backend))
	return store, closer(log, "store", store.Close), nil
}

func clickHouseOptions(cfg *config.Config) []pkgch.ClientOption {
	ch := cfg.Store.ClickHouse
	return []pkgch.ClientOption{
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
		pkgch.WithAsyncInsert(ch.AsyncInsert, !ch.AsyncInsertNoWait),
	}
}

// ProvideRedisCache connects to Redis. It returns nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config, log *logger.Logger) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
		cache.WithRedisPrefix(cfg.Jobs.KeyPrefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, closer(log, "redis", rc.Close), nil
}

// ProvideCache prefers Redis and falls back to a process-local cache. The
// Redis connection is released by ProvideRedisCache's cleanup.
func ProvideCache(rc *cache.RedisCache) (cache.Service, func()) {
	if rc != nil {
		return rc, func() {}
	}
	mc := cache.NewMemoryCache()
	return mc, func() { _ = mc.Close() }
}

// ProvideLocker guards each series with a cache lock.
func ProvideLocker(c cache.Service, log *logger.Logger) repository.Locker {
	return internalrepo.NewCacheLocker(c, log)
}

// ProvideJobStatus keeps the last job results in the cache.
func ProvideJobStatus(c cache.Service) repository.JobStatusStore {
	return internalrepo.NewCacheJobStatus(c, 0)
}

// ProvideEventPublisher publishes to Kafka when enabled.
func ProvideEventPublisher(cfg *config.Config, log *logger.Logger) (repository.EventPublisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NopPublisher{}, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithBatch(cfg.Kafka.BatchSize, cfg.Kafka.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.WriteTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	log.Info("kafka producer ready",
		logger.Strings("brokers", cfg.Kafka.Brokers),
		logger.String("topic", cfg.Kafka.Topic))
	events := internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topic, log)
	return events, closer(log, "events", events.Close), nil
}

// ProvideRegistry loads the configured instruments.
func ProvideRegistry(cfg *config.Config) *registry.Static {
	return registry.FromConfig(cfg.Instruments)
}

// ProvideChunkFetcher builds the provider fallback chain in config order.
// Every provider gets its own request budget shared by all workers.
func ProvideChunkFetcher(cfg *config.Config, m repository.Metrics, log *logger.Logger) (repository.ChunkFetcher, error) {
	budget := ratelimit.NewBudget()
	sources := make([]provider.Source, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if p.Disabled {
			continue
		}
		maxRows := p.MaxRows
		if maxRows == 0 {
			maxRows = cfg.Ingestion.MaxRows
		}
		client, err := provider.NewKlineClient(p.Name, p.Profile,
			provider.WithBaseURL(p.BaseURL),
			provider.WithMaxRows(maxRows),
			provider.WithTimeout(cfg.Ingestion.RequestTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.Name, err)
		}
		budget.SetRate(client.ID(), p.RequestsPerMinute)
		sources = append(sources, provider.Source{
			Provider:  client,
			Mapper:    symbols.NewMapper(p.QuoteSuffix, p.SymbolMap),
			Intervals: client.Intervals(),
			MaxRows:   client.MaxRows(),
		})
	}

	retry := ratelimit.RetryPolicy{
		MaxAttempts: cfg.Ingestion.RetryAttempts,
		BaseDelay:   cfg.Ingestion.RetryBaseDelay,
	}
	chain, err := provider.NewChain(repository.DefaultTimeframePolicy(), sources, retry,
		provider.WithBudget(budget),
		provider.WithMetrics(m),
		provider.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// ProvideBackfiller creates the chunk walker.
func ProvideBackfiller(
	cfg *config.Config,
	fetcher repository.ChunkFetcher,
	store repository.Store,
	events repository.EventPublisher,
	m repository.Metrics,
	log *logger.Logger,
) (*usecase.Backfiller, error) {
	epoch, err := cfg.DefaultStart()
	if err != nil {
		return nil, err
	}
	return usecase.NewBackfiller(fetcher, repository.DefaultTimeframePolicy(), store,
		usecase.BackfillerConfig{
			Epoch: epoch,
			Pacing: ratelimit.Pacing{
				BaseDelay:     cfg.Ingestion.BaseDelay,
				BurstEvery:    cfg.Ingestion.BurstEvery,
				BurstCooldown: cfg.Ingestion.BurstCooldown,
			},
			SaveTimeout: cfg.Ingestion.RequestTimeout,
		},
		usecase.WithEvents(events),
		usecase.WithBackfillMetrics(m),
		usecase.WithBackfillLogger(log),
	), nil
}

// ProvideGapRepairer creates the gap repair use case.
func ProvideGapRepairer(store repository.Store, b *usecase.Backfiller, log *logger.Logger) *usecase.GapRepairer {
	return usecase.NewGapRepairer(store, b, log)
}

// ProvideQualityAssessor creates the completeness assessor.
func ProvideQualityAssessor(
	cfg *config.Config,
	store repository.Store,
	events repository.EventPublisher,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.QualityAssessor {
	return usecase.NewQualityAssessor(store, cfg.Quality.GapThresholdPct, events, m, log)
}

// ProvideEngine creates the guarded job entry points.
func ProvideEngine(
	cfg *config.Config,
	b *usecase.Backfiller,
	r *usecase.GapRepairer,
	q *usecase.QualityAssessor,
	store repository.Store,
	reg *registry.Static,
	locker repository.Locker,
	status repository.JobStatusStore,
	events repository.EventPublisher,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.Engine {
	return usecase.NewEngine(b, r, q, store, reg, locker, status, events, m, log, usecase.EngineConfig{
		LockTTL:           cfg.Jobs.LockTTL,
		AllowUnregistered: cfg.Ingestion.AllowUnregistered,
		DefaultLookback:   cfg.Quality.LookbackHours,
	})
}

// ProvideBarsUseCase creates the read side.
func ProvideBarsUseCase(store repository.Store) *usecase.BarsUseCase {
	return usecase.NewBarsUseCase(store)
}

// ProvideQueue runs jobs on Redis when available, in-process otherwise.
func ProvideQueue(cfg *config.Config, rc *cache.RedisCache, engine *usecase.Engine, log *logger.Logger) queue.Runner {
	qc := &queue.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		QueueSize:  cfg.Jobs.QueueSize,
		RetryLimit: cfg.Jobs.RetryLimit,
		RetryDelay: cfg.Jobs.RetryDelay,
	}
	var q queue.Runner
	if rc != nil {
		q = queue.NewRedisQueue(log, qc, rc.Client(),
			queue.WithKeyPrefix(cfg.Jobs.KeyPrefix+":jobs"))
	} else {
		log.Info("redis disabled; jobs run on the in-process queue")
		q = queue.NewLocalQueue(log, qc)
	}
	q.RegisterJobs(usecase.Jobs(engine))
	return q
}

// ProvideScheduler registers the cron triggers. It returns nil when
// scheduling is disabled.
func ProvideScheduler(cfg *config.Config, q queue.Runner, reg *registry.Static, log *logger.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Schedule.Enabled {
		return nil, nil
	}
	tfs := cfg.Schedule.Timeframes
	if len(tfs) == 0 {
		tfs = []string{"1h"}
	}
	sc := scheduler.Config{
		BackfillCron:  cfg.Schedule.BackfillCron,
		RepairCron:    cfg.Schedule.RepairCron,
		QualityCron:   cfg.Schedule.QualityCron,
		LookbackHours: cfg.Quality.LookbackHours,
	}
	for _, s := range tfs {
		tf, err := repository.ParseTimeframe(s)
		if err != nil {
			return nil, fmt.Errorf("schedule: %w", err)
		}
		sc.Timeframes = append(sc.Timeframes, tf)
	}
	s := scheduler.New(q, reg, sc, log)
	if err := s.RegisterAll(); err != nil {
		return nil, err
	}
	return s, nil
}

// ProvideIngestionHandler creates the HTTP handler.
func ProvideIngestionHandler(log *logger.Logger, engine *usecase.Engine, bars *usecase.BarsUseCase, q queue.Runner) *api.IngestionHandler {
	return api.NewIngestionHandler(log, engine, bars, q)
}

// ProvideHTTPServer creates the echo server.
func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, h *api.IngestionHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(log, []xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideApp assembles the lifecycle. Infrastructure is released by the
// injector's cleanup once Run returns.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	srv *xhttp.Server,
	q queue.Runner,
	sched *scheduler.Scheduler,
) *server.App {
	var trigger server.Trigger
	if sched != nil {
		trigger = sched
	}
	return server.New(log, srv, q, trigger, cfg.Server.ShutdownTimeout)
}

// Runtime is the engine of a one-shot run.
type Runtime struct {
	Engine *usecase.Engine
}

// ProvideRuntime assembles a Runtime.
func ProvideRuntime(engine *usecase.Engine) *Runtime {
	return &Runtime{Engine: engine}
}
