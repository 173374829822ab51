package lifecycle_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

// countingRepo считает обращения к хранилищу.
type countingRepo struct {
	domain.OrderRepository
	gets  atomic.Int64
	saves atomic.Int64
}

func (r *countingRepo) GetByOrderID(ctx context.Context, orderID string) (domain.Order, error) {
	r.gets.Add(1)
	return r.OrderRepository.GetByOrderID(ctx, orderID)
}

func (r *countingRepo) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	r.saves.Add(1)
	return r.OrderRepository.Save(ctx, order)
}

// racingRepo отвечает, что внешнего идентификатора нет, даже если он уже записан.
type racingRepo struct {
	domain.OrderRepository
}

func (racingRepo) ExistsByExternalID(context.Context, string) (bool, error) {
	return false, nil
}

type brokenCache struct {
	err error
}

func (c brokenCache) Lookup(context.Context, string) (domain.OrderView, bool, error) {
	return domain.OrderView{}, false, c.err
}

func (c brokenCache) Populate(context.Context, string, domain.OrderView) error { return c.err }
func (c brokenCache) Evict(context.Context, string) error                      { return c.err }
func (c brokenCache) Clear(context.Context) error                              { return c.err }

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []domain.OrderEvent
	err    error
	delay  time.Duration
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, event domain.OrderEvent) error {
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay):
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Events() []domain.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.OrderEvent, len(p.events))
	copy(out, p.events)
	return out
}

func (p *recordingPublisher) Kinds() []domain.EventKind {
	events := p.Events()
	kinds := make([]domain.EventKind, 0, len(events))
	for _, event := range events {
		kinds = append(kinds, event.EventType)
	}
	return kinds
}
