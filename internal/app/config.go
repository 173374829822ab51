package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/ordersvc/internal/cache"
	"github.com/vladislavdragonenkov/ordersvc/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/eventing"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/reconcile"
	httpapi "github.com/vladislavdragonenkov/ordersvc/internal/transport/http"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

// Config описывает настройки запуска сервиса заказов.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	CacheDriver   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
	// CacheSweepInterval: период очистки истёкших записей in-process кэша.
	CacheSweepInterval time.Duration

	// Пустой список брокеров отключает публикацию событий и потребителей.
	KafkaBrokers     []string
	KafkaOrdersTopic string
	KafkaOwnersTopic string
	KafkaGroupID     string
	OwnerConsumers   int
	PublishTimeout   time.Duration

	IdentityHeader  string
	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		CacheDriver:         CacheDriverMemory,
		RedisAddr:           "localhost:6379",
		CacheTTL:            cache.DefaultTTL,
		CacheSweepInterval:  cache.DefaultSweepInterval,
		KafkaOrdersTopic:    kafka.TopicOrderEvents,
		KafkaOwnersTopic:    kafka.TopicOwnerEvents,
		KafkaGroupID:        "order-service",
		OwnerConsumers:      reconcile.DefaultWorkers,
		PublishTimeout:      eventing.DefaultTimeout,
		IdentityHeader:      httpapi.DefaultIdentityHeader,
		ShutdownTimeout:     5 * time.Second,
	}
}

// KafkaEnabled сообщает, настроены ли брокеры.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Validate проверяет сочетания драйверов и обязательных параметров.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.CacheDriver {
	case CacheDriverMemory:
	case CacheDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("redis address is required for redis cache driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported cache driver %q", c.CacheDriver))
	}

	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("cache ttl must be non-negative"))
	}
	if c.CacheDriver == CacheDriverMemory && c.CacheSweepInterval <= 0 {
		errs = append(errs, errors.New("cache sweep interval must be greater than zero"))
	}
	if c.KafkaEnabled() {
		if c.KafkaOrdersTopic == "" || c.KafkaOwnersTopic == "" {
			errs = append(errs, errors.New("kafka topics must be set when brokers are configured"))
		}
		if c.KafkaGroupID == "" {
			errs = append(errs, errors.New("kafka group id must be set when brokers are configured"))
		}
		if c.OwnerConsumers <= 0 {
			errs = append(errs, errors.New("owner consumers must be greater than zero"))
		}
	}

	return errors.Join(errs...)
}
