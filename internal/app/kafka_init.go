package app

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/reconcile"
)

// ParseBrokers разбирает список брокеров через запятую, пропуская пустые элементы.
func ParseBrokers(raw string) []string {
	var brokers []string
	for _, part := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(part); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// initKafkaProducer создаёт producer событий заказов.
// Для пустого списка брокеров возвращает nil, nil.
func initKafkaProducer(brokers []string, sendTimeout time.Duration, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers,
		kafka.WithSendTimeout(sendTimeout),
		kafka.WithClientID("order-service"),
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// newOwnerWorkers собирает группу потребителей событий владельцев.
// Неисправимые сообщения уходят в DLQ, если есть producer.
func newOwnerWorkers(cfg Config, deps *runtimeDependencies, logger *log.Entry) (*reconcile.Workers, error) {
	handler := deps.reconciler.MessageHandler()
	factory := func(index int) (reconcile.Member, error) {
		opts := []kafka.ConsumerOption{
			kafka.WithConsumerLogger(logger.WithField("member", index)),
		}
		if deps.producer != nil {
			opts = append(opts, kafka.WithDLQ(deps.producer, kafka.TopicDeadLetterQueue))
		}
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, []string{cfg.KafkaOwnersTopic}, handler, opts...)
		if err != nil {
			return nil, fmt.Errorf("create owner consumer %d: %w", index, err)
		}
		return consumer, nil
	}
	return reconcile.NewWorkers(cfg.OwnerConsumers, factory, logger)
}
