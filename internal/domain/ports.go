package domain

import "context"

// OrderRepository описывает требования к долговременному хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderAlreadyExists при дубликате
	// order_id или external_order_id.
	Create(ctx context.Context, order Order) (Order, error)
	// GetByOrderID возвращает заказ по публичному идентификатору или ErrOrderNotFound.
	GetByOrderID(ctx context.Context, orderID string) (Order, error)
	// ExistsByExternalID проверяет, записан ли уже внешний идентификатор.
	ExistsByExternalID(ctx context.Context, externalOrderID string) (bool, error)
	// List возвращает страницу заказов в порядке вставки и общее количество записей.
	List(ctx context.Context, page PageRequest) ([]Order, int64, error)
	// Save применяет обновления к заказу с учётом optimistic locking и возвращает
	// сохранённую версию.
	Save(ctx context.Context, order Order) (Order, error)
	// DeleteByOwner физически удаляет все заказы владельца и возвращает их количество.
	DeleteByOwner(ctx context.Context, ownerID string) (int, error)
}

// OrderCache: lookaside-кэш проекций по order_id с фиксированным TTL.
type OrderCache interface {
	// Lookup возвращает проекцию, если она есть и не истекла. Промах не является ошибкой.
	Lookup(ctx context.Context, orderID string) (OrderView, bool, error)
	// Populate вставляет или перезаписывает запись, TTL начинается заново.
	Populate(ctx context.Context, orderID string, view OrderView) error
	// Evict удаляет одну запись; отсутствие записи не ошибка.
	Evict(ctx context.Context, orderID string) error
	// Clear удаляет все записи.
	Clear(ctx context.Context) error
}

// EventPublisher передаёт события заказа во внешний транспорт.
type EventPublisher interface {
	// Publish ждёт подтверждения транспорта не дольше, чем позволяет ctx.
	Publish(ctx context.Context, key string, event OrderEvent) error
}
