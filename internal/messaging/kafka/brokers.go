package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// ErrNoBrokers возвращается, если список брокеров пуст.
var ErrNoBrokers = errors.New("kafka brokers are not configured")

// PingBrokers проверяет, что хотя бы один брокер принимает соединения.
func PingBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return ErrNoBrokers
	}

	config := sarama.NewConfig()
	if deadline, ok := ctx.Deadline(); ok {
		if timeout := time.Until(deadline); timeout > 0 {
			config.Net.DialTimeout = timeout
		}
	}

	var errs []error
	for _, addr := range brokers {
		err := pingBroker(ctx, addr, config)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Join(errs...)
}

func pingBroker(ctx context.Context, addr string, config *sarama.Config) error {
	broker := sarama.NewBroker(addr)
	if err := broker.Open(config); err != nil && !errors.Is(err, sarama.ErrAlreadyConnected) {
		return fmt.Errorf("open broker %s: %w", addr, err)
	}
	defer func() { _ = broker.Close() }()

	result := make(chan error, 1)
	go func() {
		connected, err := broker.Connected()
		if err == nil && !connected {
			err = sarama.ErrNotConnected
		}
		result <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("ping broker %s: %w", addr, ctx.Err())
	case err := <-result:
		if err != nil {
			return fmt.Errorf("ping broker %s: %w", addr, err)
		}
		return nil
	}
}
