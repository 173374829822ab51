// Package eventing реализует best-effort публикацию событий заказа:
// ограниченное по времени ожидание подтверждения и явный результат без повторов.
package eventing

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
	"github.com/vladislavdragonenkov/ordersvc/internal/metrics"
)

// DefaultTimeout: время ожидания подтверждения транспорта по умолчанию.
const DefaultTimeout = 30 * time.Second

var (
	// ErrPublisherDisabled возвращается, если транспорт событий не настроен.
	ErrPublisherDisabled = errors.New("event publisher is disabled")
	// ErrPublishTimeout: подтверждение не получено за отведённое время.
	ErrPublishTimeout = errors.New("event publish timed out")
)

// Outcome: исход попытки публикации.
type Outcome string

const (
	OutcomeAck            Outcome = "ack"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeTransportError Outcome = "transport_error"
)

// Result описывает исход публикации одного события.
type Result struct {
	Outcome Outcome
	Err     error
}

// Acked сообщает об успешном подтверждении.
func (r Result) Acked() bool {
	return r.Outcome == OutcomeAck
}

// Emitter публикует события после записи в хранилище и никогда не влияет
// на результат вызвавшей операции.
type Emitter struct {
	publisher domain.EventPublisher
	timeout   time.Duration
	policy    FailurePolicy
	metrics   *metrics.LifecycleMetrics
	logger    *log.Entry
}

// Option настраивает Emitter.
type Option func(*Emitter)

// WithTimeout задаёт ожидание подтверждения.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Emitter) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithFailurePolicy подменяет обработку неудачных публикаций.
func WithFailurePolicy(policy FailurePolicy) Option {
	return func(e *Emitter) {
		if policy != nil {
			e.policy = policy
		}
	}
}

// WithMetrics подключает метрики публикаций.
func WithMetrics(m *metrics.LifecycleMetrics) Option {
	return func(e *Emitter) {
		e.metrics = m
	}
}

// WithLogger подменяет логгер.
func WithLogger(logger *log.Entry) Option {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEmitter создаёт Emitter. publisher может быть nil, тогда каждое событие
// завершается OutcomeTransportError с ErrPublisherDisabled.
func NewEmitter(publisher domain.EventPublisher, opts ...Option) *Emitter {
	e := &Emitter{
		publisher: publisher,
		timeout:   DefaultTimeout,
		logger:    log.WithField("component", "order-events"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.policy == nil {
		e.policy = NewLogAndContinue(e.logger)
	}
	return e
}

// Emit строит событие из проекции и публикует его с ключом kind.
func (e *Emitter) Emit(ctx context.Context, kind domain.EventKind, view domain.OrderView) Result {
	event := domain.NewOrderEvent(kind, view)
	result := e.publish(ctx, event)

	e.metrics.RecordEventPublished(string(kind), string(result.Outcome))
	if !result.Acked() {
		e.policy.Handle(ctx, event, result)
		return result
	}

	e.logger.WithFields(log.Fields{
		"event_type": kind,
		"order_id":   view.OrderID,
	}).Debug("order event published")
	return result
}

func (e *Emitter) publish(ctx context.Context, event domain.OrderEvent) Result {
	if e.publisher == nil {
		return Result{Outcome: OutcomeTransportError, Err: ErrPublisherDisabled}
	}

	// Отмена запроса клиента не должна обрывать публикацию уже записанного изменения.
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	err := e.publisher.Publish(publishCtx, string(event.EventType), event)
	switch {
	case err == nil:
		return Result{Outcome: OutcomeAck}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(publishCtx.Err(), context.DeadlineExceeded):
		return Result{Outcome: OutcomeTimeout, Err: errors.Join(ErrPublishTimeout, err)}
	default:
		return Result{Outcome: OutcomeTransportError, Err: err}
	}
}
