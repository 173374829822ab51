package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Значения label result.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Значения label result для обращений к кэшу.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// LifecycleMetrics содержит метрики жизненного цикла заказов.
// Все методы безопасны для nil-приёмника.
type LifecycleMetrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	cacheLookups *prometheus.CounterVec
	cacheErrors  *prometheus.CounterVec

	eventsPublished *prometheus.CounterVec

	ownerPurges     *prometheus.CounterVec
	ownerPurgedRows prometheus.Counter
}

// NewLifecycleMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewLifecycleMetrics() *LifecycleMetrics {
	return NewLifecycleMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewLifecycleMetricsWithRegisterer регистрирует метрики в переданном registerer;
// повторная регистрация переиспользует уже существующие коллекторы.
func NewLifecycleMetricsWithRegisterer(registerer prometheus.Registerer) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LifecycleMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_operations_total",
			Help: "Total number of order lifecycle operations by outcome",
		}, []string{"operation", "result"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orders_operation_duration_seconds",
			Help:    "Duration of order lifecycle operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 30.0},
		}, []string{"operation"}),
		cacheLookups: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_cache_lookups_total",
			Help: "Total number of order cache lookups by result",
		}, []string{"result"}),
		cacheErrors: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_cache_errors_total",
			Help: "Total number of failed order cache calls",
		}, []string{"operation"}),
		eventsPublished: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_events_published_total",
			Help: "Total number of order events emitted by kind and outcome",
		}, []string{"kind", "outcome"}),
		ownerPurges: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_owner_purges_total",
			Help: "Total number of owner purge runs by result",
		}, []string{"result"}),
		ownerPurgedRows: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_owner_purged_rows_total",
			Help: "Total number of order rows removed by owner purges",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOperation учитывает исход и длительность операции.
func (m *LifecycleMetrics) RecordOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheLookup увеличивает счётчик обращений к кэшу (hit, miss, error).
func (m *LifecycleMetrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordCacheError учитывает неудачный вызов кэша.
func (m *LifecycleMetrics) RecordCacheError(operation string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(operation).Inc()
}

// RecordEventPublished учитывает исход публикации события.
func (m *LifecycleMetrics) RecordEventPublished(kind, outcome string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(kind, outcome).Inc()
}

// RecordOwnerPurge учитывает прогон очистки заказов владельца.
func (m *LifecycleMetrics) RecordOwnerPurge(removed int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ownerPurges.WithLabelValues(ResultError).Inc()
		return
	}
	m.ownerPurges.WithLabelValues(ResultSuccess).Inc()
	m.ownerPurgedRows.Add(float64(removed))
}
