package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "orders"
	TopicOwnerEvents     = "users"
	TopicDeadLetterQueue = "orders.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// DeadLetter: конверт сообщения, не обработанного после всех попыток.
type DeadLetter struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int32     `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	OriginalKey       string    `json:"original_key"`
	OriginalValue     string    `json:"original_value"`
	ErrorMessage      string    `json:"error_message"`
	FailedAt          time.Time `json:"failed_at"`
	RetryCount        int       `json:"retry_count"`
}

// ParseOwnerEvent парсит событие владельца из сообщения.
func ParseOwnerEvent(message *sarama.ConsumerMessage) (domain.OwnerEvent, error) {
	var event domain.OwnerEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return domain.OwnerEvent{}, fmt.Errorf("failed to unmarshal owner event: %w", err)
	}
	return event, nil
}

// ParseOrderEvent парсит OrderEvent из сообщения
func ParseOrderEvent(message *sarama.ConsumerMessage) (domain.OrderEvent, error) {
	var event domain.OrderEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return domain.OrderEvent{}, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	return event, nil
}

// ParseDeadLetter парсит конверт из DLQ topic.
func ParseDeadLetter(message *sarama.ConsumerMessage) (DeadLetter, error) {
	var letter DeadLetter
	if err := json.Unmarshal(message.Value, &letter); err != nil {
		return DeadLetter{}, fmt.Errorf("failed to unmarshal dead letter: %w", err)
	}
	return letter, nil
}
