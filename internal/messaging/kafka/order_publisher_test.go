package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

func TestOrderEventPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event domain.OrderEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.OrderID != "order-123" || event.EventType != domain.EventOrderUpdated {
			t.Errorf("unexpected payload: %+v", event)
		}
		return nil
	})

	producer := newProducer(mockProducer, log.WithField("component", "kafka-order-publisher-test"))
	publisher := NewOrderEventPublisher(producer, "")
	if publisher.Topic() != TopicOrderEvents {
		t.Fatalf("expected default topic %s, got %s", TopicOrderEvents, publisher.Topic())
	}

	event := domain.NewOrderEvent(domain.EventOrderUpdated, domain.OrderView{
		OrderID:    "order-123",
		Status:     domain.OrderStatusConfirmed,
		UnitPrice:  decimal.NewFromInt(5),
		TotalPrice: decimal.NewFromInt(10),
		Quantity:   2,
	})
	if err := publisher.Publish(context.Background(), string(domain.EventOrderUpdated), event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOrderEventPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOrderEventPublisher(newProducer(mockProducer, nil), "orders-custom")
	err := publisher.Publish(context.Background(), "ORDER_CREATED", domain.OrderEvent{})
	if err == nil {
		t.Fatal("expected publish error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOrderEventPublisher_NotInitialized(t *testing.T) {
	t.Parallel()

	var publisher *OrderEventPublisher
	if err := publisher.Publish(context.Background(), "k", domain.OrderEvent{}); err == nil {
		t.Fatal("expected error for nil publisher")
	}
}
