package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

// orderRepositoryInMemory: простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu         sync.RWMutex
	items      map[string]domain.Order
	byExternal map[string]string
	seq        int64
	now        func() time.Time
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:      make(map[string]domain.Order),
		byExternal: make(map[string]string),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create сохраняет новый заказ, если order_id и external_order_id ещё не заняты.
func (r *orderRepositoryInMemory) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.OrderID]; exists {
		return domain.Order{}, domain.ErrOrderAlreadyExists
	}
	if _, exists := r.byExternal[order.ExternalOrderID]; exists {
		return domain.Order{}, domain.ErrOrderAlreadyExists
	}

	r.seq++
	order.InternalID = r.seq
	now := r.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	r.items[order.OrderID] = order
	r.byExternal[order.ExternalOrderID] = order.OrderID
	return order, nil
}

// GetByOrderID возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) GetByOrderID(ctx context.Context, orderID string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (r *orderRepositoryInMemory) ExistsByExternalID(ctx context.Context, externalOrderID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byExternal[externalOrderID]
	return ok, nil
}

// List возвращает страницу заказов в порядке вставки.
func (r *orderRepositoryInMemory) List(ctx context.Context, page domain.PageRequest) ([]domain.Order, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	page = page.Normalize()

	r.mu.RLock()
	all := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		all = append(all, order)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].InternalID < all[j].InternalID
	})

	total := int64(len(all))
	offset := page.Offset()
	if offset >= len(all) {
		return []domain.Order{}, total, nil
	}
	end := offset + page.Size
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.OrderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.Order{}, domain.ErrOrderVersionConflict
	}

	// Идентификаторы, владелец и момент создания не меняются после вставки.
	order.InternalID = current.InternalID
	order.ExternalOrderID = current.ExternalOrderID
	order.OwnerID = current.OwnerID
	order.CreatedAt = current.CreatedAt
	order.Version++
	order.UpdatedAt = r.now()
	r.items[order.OrderID] = order
	return order, nil
}

// DeleteByOwner физически удаляет все заказы владельца.
func (r *orderRepositoryInMemory) DeleteByOwner(ctx context.Context, ownerID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, order := range r.items {
		if order.OwnerID != ownerID {
			continue
		}
		delete(r.items, id)
		delete(r.byExternal, order.ExternalOrderID)
		removed++
	}
	return removed, nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
