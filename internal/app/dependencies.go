package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/cache"
	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/ordersvc/internal/health"
	"github.com/vladislavdragonenkov/ordersvc/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ordersvc/internal/metrics"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/eventing"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/reconcile"
	"github.com/vladislavdragonenkov/ordersvc/internal/storage/memory"
	"github.com/vladislavdragonenkov/ordersvc/internal/storage/postgres"
)

// runtimeDependencies содержит собранные компоненты процесса.
type runtimeDependencies struct {
	repo       domain.OrderRepository
	cache      domain.OrderCache
	producer   *kafka.Producer
	metrics    *metrics.LifecycleMetrics
	engine     *lifecycle.Engine
	reconciler *reconcile.Reconciler
	// sweeper есть только у in-process кэша.
	sweeper *cache.Sweeper

	storageChecker healthcheck.Checker
	cacheChecker   healthcheck.Checker
	kafkaChecker   healthcheck.Checker

	closers []func() error
}

// closeFn закрывает ресурсы в порядке, обратном открытию.
func (d *runtimeDependencies) closeFn() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// initRuntimeDependencies собирает хранилище, кэш, транспорт событий и движок.
// При ошибке уже открытые ресурсы закрываются.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (deps *runtimeDependencies, err error) {
	return initRuntimeDependenciesWithRegisterer(ctx, cfg, logger, prometheus.DefaultRegisterer)
}

func initRuntimeDependenciesWithRegisterer(ctx context.Context, cfg Config, logger *log.Entry, registerer prometheus.Registerer) (deps *runtimeDependencies, err error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	built := &runtimeDependencies{metrics: metrics.NewLifecycleMetricsWithRegisterer(registerer)}
	defer func() {
		if err != nil {
			_ = built.closeFn()
		}
	}()

	if err := initStorage(ctx, cfg, logger, built); err != nil {
		return nil, err
	}
	if err := initCache(ctx, cfg, logger, built); err != nil {
		return nil, err
	}

	var publisher domain.EventPublisher
	if cfg.KafkaEnabled() {
		producer, err := initKafkaProducer(cfg.KafkaBrokers, cfg.PublishTimeout, logger)
		if err != nil {
			// Сервис работает без событий: запись остаётся источником истины.
			logger.WithError(err).Warn("continuing without order events")
		} else {
			built.producer = producer
			built.closers = append(built.closers, func() error {
				closeKafka(producer, logger)
				return nil
			})
			orderEvents := kafka.NewOrderEventPublisher(producer, cfg.KafkaOrdersTopic)
			logger.WithField("topic", orderEvents.Topic()).Info("publishing order events")
			publisher = orderEvents
		}
		brokers := cfg.KafkaBrokers
		built.kafkaChecker = healthcheck.NewSimpleChecker("kafka", func(ctx context.Context) error {
			return kafka.PingBrokers(ctx, brokers)
		})
	}

	emitter := eventing.NewEmitter(publisher,
		eventing.WithTimeout(cfg.PublishTimeout),
		eventing.WithMetrics(built.metrics),
		eventing.WithLogger(logger.WithField("component", "order-events")),
	)
	built.reconciler = reconcile.NewReconciler(built.repo, built.cache,
		reconcile.WithMetrics(built.metrics),
		reconcile.WithLogger(logger.WithField("component", "owner-reconciler")),
	)
	built.engine = lifecycle.NewEngine(built.repo, built.cache, emitter,
		lifecycle.WithPurger(built.reconciler),
		lifecycle.WithMetrics(built.metrics),
		lifecycle.WithLogger(logger.WithField("component", "order-lifecycle")),
	)
	return built, nil
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry, deps *runtimeDependencies) error {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		deps.repo = memory.NewOrderRepository()
		logger.Info("using in-memory order storage")
		return nil
	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres storage: %w", err)
		}
		deps.closers = append(deps.closers, store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		deps.repo = postgres.NewOrderRepository(store)
		deps.storageChecker = healthcheck.PingChecker("postgres", store)
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres order storage")
		return nil
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initCache(ctx context.Context, cfg Config, logger *log.Entry, deps *runtimeDependencies) error {
	switch cfg.CacheDriver {
	case CacheDriverMemory:
		memoryCache := cache.NewMemory(cfg.CacheTTL)
		deps.cache = memoryCache
		deps.sweeper = cache.NewSweeper(memoryCache,
			cache.WithSweepInterval(cfg.CacheSweepInterval),
			cache.WithSweepLogger(logger.WithField("component", "cache-sweeper")),
		)
		logger.WithFields(log.Fields{
			"ttl":            cfg.CacheTTL.String(),
			"sweep_interval": deps.sweeper.Interval().String(),
		}).Info("using in-process order cache")
		return nil
	case CacheDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		deps.closers = append(deps.closers, client.Close)
		redisCache := cache.NewRedis(client, cfg.CacheTTL)
		if err := redisCache.Ping(ctx); err != nil {
			// Кэш необязателен: промахи и ошибки читаются из хранилища.
			logger.WithError(err).Warn("redis is not reachable at startup")
		}
		deps.cache = redisCache
		deps.cacheChecker = healthcheck.PingChecker("redis", redisCache)
		logger.WithFields(log.Fields{
			"addr": cfg.RedisAddr,
			"ttl":  cfg.CacheTTL.String(),
		}).Info("using redis order cache")
		return nil
	default:
		return fmt.Errorf("unsupported cache driver %q", cfg.CacheDriver)
	}
}

// registerHealthChecks подключает проверки зависимостей. Кэш и Kafka
// необязательны: их отказ даёт degraded.
func registerHealthChecks(handler *healthcheck.Handler, deps *runtimeDependencies) {
	if deps.storageChecker != nil {
		handler.RegisterChecker("storage", deps.storageChecker)
	}
	if deps.cacheChecker != nil {
		handler.RegisterOptional("cache", deps.cacheChecker)
	}
	if deps.kafkaChecker != nil {
		handler.RegisterOptional("kafka", deps.kafkaChecker)
	}
}
