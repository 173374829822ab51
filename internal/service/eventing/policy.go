package eventing

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

// FailurePolicy решает, что делать с неподтверждённым событием.
// Реализация не должна блокировать вызывающую операцию надолго.
type FailurePolicy interface {
	Handle(ctx context.Context, event domain.OrderEvent, result Result)
}

// FailurePolicyFunc адаптирует функцию к FailurePolicy.
type FailurePolicyFunc func(ctx context.Context, event domain.OrderEvent, result Result)

func (f FailurePolicyFunc) Handle(ctx context.Context, event domain.OrderEvent, result Result) {
	f(ctx, event, result)
}

// LogAndContinue пишет предупреждение и ничего больше не делает.
type LogAndContinue struct {
	logger *log.Entry
}

// NewLogAndContinue создаёт политику по умолчанию.
func NewLogAndContinue(logger *log.Entry) *LogAndContinue {
	if logger == nil {
		logger = log.WithField("component", "order-events")
	}
	return &LogAndContinue{logger: logger}
}

func (p *LogAndContinue) Handle(_ context.Context, event domain.OrderEvent, result Result) {
	p.logger.WithError(result.Err).WithFields(log.Fields{
		"event_type": event.EventType,
		"order_id":   event.OrderID,
		"owner_id":   event.OwnerID,
		"outcome":    result.Outcome,
	}).Warn("order event was not acknowledged")
}
