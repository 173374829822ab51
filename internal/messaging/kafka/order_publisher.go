package kafka

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

// OrderEventPublisher публикует события заказов в заданный Kafka topic.
type OrderEventPublisher struct {
	producer *Producer
	topic    string
}

// NewOrderEventPublisher создаёт паблишер событий жизненного цикла заказа.
func NewOrderEventPublisher(producer *Producer, topic string) *OrderEventPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OrderEventPublisher{
		producer: producer,
		topic:    topic,
	}
}

// Publish отправляет событие с ключом key; ключ определяет партицию.
func (p *OrderEventPublisher) Publish(ctx context.Context, key string, event domain.OrderEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka order publisher is not initialized")
	}
	return p.producer.PublishEvent(ctx, p.topic, key, event)
}

// Topic возвращает topic назначения.
func (p *OrderEventPublisher) Topic() string {
	return p.topic
}

var _ domain.EventPublisher = (*OrderEventPublisher)(nil)
