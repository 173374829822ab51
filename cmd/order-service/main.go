package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/app"
)

const (
	envHTTPAddr            = "ORDERS_HTTP_ADDR"
	envMetricsAddr         = "ORDERS_METRICS_ADDR"
	envStorageDriver       = "ORDERS_STORAGE_DRIVER"
	envPostgresDSN         = "ORDERS_POSTGRES_DSN"
	envPostgresAutoMigrate = "ORDERS_POSTGRES_AUTO_MIGRATE"
	envCacheDriver         = "ORDERS_CACHE_DRIVER"
	envRedisAddr           = "ORDERS_REDIS_ADDR"
	envRedisPassword       = "ORDERS_REDIS_PASSWORD"
	envRedisDB             = "ORDERS_REDIS_DB"
	envCacheTTL            = "ORDERS_CACHE_TTL"
	envCacheSweepInterval  = "ORDERS_CACHE_SWEEP_INTERVAL"
	envKafkaBrokers        = "ORDERS_KAFKA_BROKERS"
	envKafkaOrdersTopic    = "ORDERS_KAFKA_ORDERS_TOPIC"
	envKafkaOwnersTopic    = "ORDERS_KAFKA_OWNERS_TOPIC"
	envKafkaGroupID        = "ORDERS_KAFKA_GROUP_ID"
	envOwnerConsumers      = "ORDERS_OWNER_CONSUMERS"
	envPublishTimeout      = "ORDERS_PUBLISH_TIMEOUT"
	envIdentityHeader      = "ORDERS_IDENTITY_HEADER"
	envShutdownTimeout     = "ORDERS_SHUTDOWN_TIMEOUT"
	envLogLevel            = "ORDERS_LOG_LEVEL"
	envLogFormat           = "ORDERS_LOG_FORMAT"
)

type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
// Возвращает предупреждение, если уровень не распознан.
func setupLogger(lookup envLookup) []string {
	var warnings []string

	formatter := strings.ToLower(readString(lookup, envLogFormat))
	switch formatter {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		warnings = append(warnings, fmt.Sprintf("%s=%q is not supported, using text", envLogFormat, formatter))
	}

	level := log.InfoLevel
	if raw := readString(lookup, envLogLevel); raw != "" {
		parsed, err := log.ParseLevel(raw)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envLogLevel, err))
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)
	return warnings
}

// readConfigFromEnv формирует конфигурацию из переменных окружения.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию,
// а в warnings добавляется описание.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q: %v", key, raw, err))
	}

	if v := readString(lookup, envHTTPAddr); v != "" {
		cfg.HTTPAddr = v
	}
	if v := readString(lookup, envMetricsAddr); v != "" {
		cfg.MetricsAddr = v
	}
	if v := readString(lookup, envStorageDriver); v != "" {
		cfg.StorageDriver = strings.ToLower(v)
	}
	if v := readString(lookup, envPostgresDSN); v != "" {
		cfg.PostgresDSN = v
	}
	if raw, ok := lookup(envPostgresAutoMigrate); ok {
		if value, err := parseBool(raw); err != nil {
			warn(envPostgresAutoMigrate, raw, err)
		} else {
			cfg.PostgresAutoMigrate = value
		}
	}
	if v := readString(lookup, envCacheDriver); v != "" {
		cfg.CacheDriver = strings.ToLower(v)
	}
	if v := readString(lookup, envRedisAddr); v != "" {
		cfg.RedisAddr = v
	}
	if raw, ok := lookup(envRedisPassword); ok {
		cfg.RedisPassword = raw
	}
	if raw, ok := lookup(envRedisDB); ok {
		if value, err := parseInt(raw, func(v int) bool { return v >= 0 }, "must be >= 0"); err != nil {
			warn(envRedisDB, raw, err)
		} else {
			cfg.RedisDB = value
		}
	}
	if raw, ok := lookup(envCacheTTL); ok {
		if value, err := parseDuration(raw, func(v time.Duration) bool { return v > 0 }, "must be > 0"); err != nil {
			warn(envCacheTTL, raw, err)
		} else {
			cfg.CacheTTL = value
		}
	}
	if raw, ok := lookup(envCacheSweepInterval); ok {
		if value, err := parseDuration(raw, func(v time.Duration) bool { return v > 0 }, "must be > 0"); err != nil {
			warn(envCacheSweepInterval, raw, err)
		} else {
			cfg.CacheSweepInterval = value
		}
	}
	if raw, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = app.ParseBrokers(raw)
	}
	if v := readString(lookup, envKafkaOrdersTopic); v != "" {
		cfg.KafkaOrdersTopic = v
	}
	if v := readString(lookup, envKafkaOwnersTopic); v != "" {
		cfg.KafkaOwnersTopic = v
	}
	if v := readString(lookup, envKafkaGroupID); v != "" {
		cfg.KafkaGroupID = v
	}
	if raw, ok := lookup(envOwnerConsumers); ok {
		if value, err := parseInt(raw, func(v int) bool { return v > 0 }, "must be > 0"); err != nil {
			warn(envOwnerConsumers, raw, err)
		} else {
			cfg.OwnerConsumers = value
		}
	}
	if raw, ok := lookup(envPublishTimeout); ok {
		if value, err := parseDuration(raw, func(v time.Duration) bool { return v > 0 }, "must be > 0"); err != nil {
			warn(envPublishTimeout, raw, err)
		} else {
			cfg.PublishTimeout = value
		}
	}
	if v := readString(lookup, envIdentityHeader); v != "" {
		cfg.IdentityHeader = v
	}
	if raw, ok := lookup(envShutdownTimeout); ok {
		if value, err := parseDuration(raw, func(v time.Duration) bool { return v > 0 }, "must be > 0"); err != nil {
			warn(envShutdownTimeout, raw, err)
		} else {
			cfg.ShutdownTimeout = value
		}
	}

	return cfg, warnings
}

func readString(lookup envLookup, key string) string {
	raw, ok := lookup(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(raw)
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value")
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer value")
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value")
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func main() {
	logWarnings := setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range append(logWarnings, warnings...) {
		log.WithField("component", "config").Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"cache_driver":   cfg.CacheDriver,
		"kafka_enabled":  cfg.KafkaEnabled(),
	}).Info("запускаем order-service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("order-service остановлен")
}
