package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// DefaultSendTimeout ограничивает ожидание подтверждения брокера.
const DefaultSendTimeout = 30 * time.Second

// Producer представляет Kafka producer для публикации событий
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
}

// ProducerOption настраивает sarama-конфигурацию producer.
type ProducerOption func(*sarama.Config)

// WithSendTimeout задаёт Producer.Timeout на стороне брокера.
func WithSendTimeout(timeout time.Duration) ProducerOption {
	return func(cfg *sarama.Config) {
		if timeout > 0 {
			cfg.Producer.Timeout = timeout
		}
	}
}

// WithClientID задаёт client.id для брокера.
func WithClientID(id string) ProducerOption {
	return func(cfg *sarama.Config) {
		if id != "" {
			cfg.ClientID = id
		}
	}
}

// NewProducer создает новый Kafka producer
func NewProducer(brokers []string, opts ...ProducerOption) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll // Wait for all in-sync replicas
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true // Включаем идемпотентность
	config.Net.MaxOpenRequests = 1    // Для идемпотентности
	config.Producer.Timeout = DefaultSendTimeout
	for _, opt := range opts {
		opt(config)
	}

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return newProducer(producer, nil), nil
}

func newProducer(producer sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{producer: producer, logger: logger}
}

// PublishEvent публикует событие в Kafka и ждёт подтверждения не дольше, чем позволяет ctx.
func (p *Producer) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(eventData),
		Timestamp: time.Now(),
	}

	type sendResult struct {
		partition int32
		offset    int64
		err       error
	}
	// SyncProducer не принимает контекст; отправка продолжается в фоне
	// и завершится по Producer.Timeout.
	done := make(chan sendResult, 1)
	go func() {
		partition, offset, err := p.producer.SendMessage(msg)
		done <- sendResult{partition: partition, offset: offset, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			p.logger.WithError(res.err).WithFields(log.Fields{
				"topic": topic,
				"key":   key,
			}).Error("failed to send message to kafka")
			return fmt.Errorf("failed to send message: %w", res.err)
		}
		p.logger.WithFields(log.Fields{
			"topic":     topic,
			"key":       key,
			"partition": res.partition,
			"offset":    res.offset,
		}).Debug("message sent to kafka")
		return nil
	case <-ctx.Done():
		p.logger.WithFields(log.Fields{
			"topic": topic,
			"key":   key,
		}).Warn("kafka acknowledgement not received in time")
		return fmt.Errorf("wait for kafka acknowledgement: %w", ctx.Err())
	}
}

// Close закрывает producer
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
