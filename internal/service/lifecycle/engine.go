// Package lifecycle оркестрирует операции над заказом: проверку статуса,
// запись в хранилище, инвалидацию кэша и публикацию события.
//
// Порядок внутри операции фиксирован: хранилище, затем кэш, затем событие.
// Ошибки кэша и транспорта событий не отменяют успешную запись.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
	"github.com/vladislavdragonenkov/ordersvc/internal/metrics"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/eventing"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/reconcile"
)

const (
	opCreate       = "create"
	opGetPage      = "get_page"
	opGet          = "get"
	opUpdate       = "update"
	opSoftDelete   = "soft_delete"
	opPurgeByOwner = "purge_by_owner"
)

// CreateOrderRequest: входные данные создания заказа.
type CreateOrderRequest struct {
	ExternalOrderID string
	Product         string
	Quantity        int
	UnitPrice       decimal.Decimal
	TTLSeconds      int64
}

// UpdateOrderRequest: входные данные изменения заказа.
type UpdateOrderRequest struct {
	Product   string
	Quantity  int
	UnitPrice decimal.Decimal
	Status    domain.OrderStatus
	// ExpectedVersion, если задан, должен совпасть с текущей версией записи.
	ExpectedVersion *int64
}

// Engine выполняет операции жизненного цикла заказа. Безопасен для
// конкурентного использования; согласованность записей обеспечивает версия.
type Engine struct {
	repo    domain.OrderRepository
	cache   domain.OrderCache
	emitter *eventing.Emitter
	purger  reconcile.Purger
	metrics *metrics.LifecycleMetrics
	logger  *log.Entry
	now     func() time.Time
	newID   func() string
}

// Option настраивает Engine.
type Option func(*Engine)

// WithPurger подменяет процедуру удаления заказов владельца.
func WithPurger(p reconcile.Purger) Option {
	return func(e *Engine) {
		e.purger = p
	}
}

// WithMetrics подключает метрики операций и кэша.
func WithMetrics(m *metrics.LifecycleMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger подменяет логгер.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator подменяет генератор order_id.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// NewEngine собирает Engine. Если emitter равен nil, события не публикуются,
// а каждая попытка обрабатывается политикой как ошибка транспорта.
func NewEngine(repo domain.OrderRepository, cache domain.OrderCache, emitter *eventing.Emitter, opts ...Option) *Engine {
	e := &Engine{
		repo:    repo,
		cache:   cache,
		emitter: emitter,
		logger:  log.WithField("component", "order-lifecycle"),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.emitter == nil {
		e.emitter = eventing.NewEmitter(nil, eventing.WithMetrics(e.metrics))
	}
	if e.purger == nil {
		e.purger = reconcile.NewReconciler(repo, cache, reconcile.WithMetrics(e.metrics))
	}
	return e
}

// Create создаёт заказ в статусе PENDING и публикует ORDER_CREATED.
// Кэш не заполняется.
func (e *Engine) Create(ctx context.Context, ownerID string, req CreateOrderRequest) (view domain.OrderView, err error) {
	start := time.Now()
	logger := e.logger.WithFields(log.Fields{
		"operation":         opCreate,
		"owner_id":          ownerID,
		"external_order_id": req.ExternalOrderID,
	})
	defer func() { e.observe(logger, opCreate, start, err) }()

	if err := domain.ValidateTTL(req.TTLSeconds); err != nil {
		return domain.OrderView{}, err
	}

	now := e.now()
	order := domain.Order{
		OrderID:         e.newID(),
		ExternalOrderID: strings.TrimSpace(req.ExternalOrderID),
		OwnerID:         strings.TrimSpace(ownerID),
		Product:         req.Product,
		Quantity:        req.Quantity,
		UnitPrice:       req.UnitPrice,
		Status:          domain.OrderStatusPending,
		ExpirationDate:  now.Add(time.Duration(req.TTLSeconds) * time.Second),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.RecalculateTotal()
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.OrderView{}, errors.Join(errs...)
	}

	exists, err := e.repo.ExistsByExternalID(ctx, order.ExternalOrderID)
	if err != nil {
		return domain.OrderView{}, fmt.Errorf("check external order id: %w", err)
	}
	if exists {
		return domain.OrderView{}, domain.ErrOrderAlreadyExists
	}

	// Уникальность повторно проверяется хранилищем на случай гонки.
	created, err := e.repo.Create(ctx, order)
	if err != nil {
		if errors.Is(err, domain.ErrOrderAlreadyExists) {
			return domain.OrderView{}, domain.ErrOrderAlreadyExists
		}
		return domain.OrderView{}, fmt.Errorf("create order: %w", err)
	}

	view = created.View()
	logger = logger.WithField("order_id", view.OrderID)
	e.emitter.Emit(ctx, domain.EventOrderCreated, view)
	return view, nil
}

// GetPage возвращает страницу заказов напрямую из хранилища.
func (e *Engine) GetPage(ctx context.Context, req domain.PageRequest) (page domain.Page, err error) {
	start := time.Now()
	req = req.Normalize()
	logger := e.logger.WithFields(log.Fields{
		"operation": opGetPage,
		"page":      req.Page,
		"size":      req.Size,
	})
	defer func() { e.observe(logger, opGetPage, start, err) }()

	orders, total, err := e.repo.List(ctx, req)
	if err != nil {
		return domain.Page{}, fmt.Errorf("list orders: %w", err)
	}

	items := make([]domain.OrderView, 0, len(orders))
	for _, order := range orders {
		items = append(items, order.View())
	}
	return domain.NewPage(items, req, total), nil
}

// GetByOrderID читает проекцию через кэш; при промахе читает хранилище
// и заполняет кэш.
func (e *Engine) GetByOrderID(ctx context.Context, orderID string) (view domain.OrderView, err error) {
	start := time.Now()
	logger := e.logger.WithFields(log.Fields{
		"operation": opGet,
		"order_id":  orderID,
	})
	defer func() { e.observe(logger, opGet, start, err) }()

	view, err = e.read(ctx, logger, orderID)
	if err == nil {
		logger = logger.WithField("owner_id", view.OwnerID)
	}
	return view, err
}

// Owner возвращает владельца заказа по тому же пути чтения, что и GetByOrderID.
func (e *Engine) Owner(ctx context.Context, orderID string) (string, error) {
	view, err := e.read(ctx, e.logger.WithFields(log.Fields{
		"operation": "owner",
		"order_id":  orderID,
	}), orderID)
	if err != nil {
		return "", err
	}
	return view.OwnerID, nil
}

func (e *Engine) read(ctx context.Context, logger *log.Entry, orderID string) (domain.OrderView, error) {
	cached, ok, err := e.cache.Lookup(ctx, orderID)
	switch {
	case err != nil:
		e.metrics.RecordCacheLookup(metrics.CacheError)
		logger.WithError(err).Warn("order cache lookup failed, reading store")
	case ok:
		e.metrics.RecordCacheLookup(metrics.CacheHit)
		return cached, nil
	default:
		e.metrics.RecordCacheLookup(metrics.CacheMiss)
	}

	order, err := e.load(ctx, orderID)
	if err != nil {
		return domain.OrderView{}, err
	}

	view := order.View()
	if err := e.cache.Populate(ctx, orderID, view); err != nil {
		e.metrics.RecordCacheError("populate")
		logger.WithError(err).Warn("failed to populate order cache")
	}
	return view, nil
}

// Update применяет изменения к заказу с проверками статуса.
func (e *Engine) Update(ctx context.Context, orderID string, req UpdateOrderRequest) (view domain.OrderView, err error) {
	start := time.Now()
	logger := e.logger.WithFields(log.Fields{
		"operation": opUpdate,
		"order_id":  orderID,
		"status":    req.Status,
	})
	defer func() { e.observe(logger, opUpdate, start, err) }()

	// Порядок проверок: существование, версия, статус записи и только потом тело.
	current, err := e.load(ctx, orderID)
	if err != nil {
		return domain.OrderView{}, err
	}
	logger = logger.WithField("owner_id", current.OwnerID)

	if req.ExpectedVersion != nil && *req.ExpectedVersion != current.Version {
		return domain.OrderView{}, domain.ErrOrderVersionConflict
	}
	if !domain.IsAlive(current.Status) {
		return domain.OrderView{}, domain.NewInvalidStatusError(current.Status)
	}
	if err := validateUpdate(req); err != nil {
		return domain.OrderView{}, err
	}

	next := current
	editable := domain.MutableFieldsEditable(current)
	if domain.PriceOrQuantityChanged(req.Quantity, req.UnitPrice, current) && !editable {
		return domain.OrderView{}, domain.NewInvalidStatusError(current.Status)
	}
	if editable {
		next.Quantity = req.Quantity
		next.UnitPrice = req.UnitPrice
		next.Product = req.Product
		next.RecalculateTotal()
	}
	next.Status = req.Status

	saved, err := e.save(ctx, next)
	if err != nil {
		return domain.OrderView{}, err
	}

	e.evict(ctx, logger, orderID)
	view = saved.View()
	e.emitter.Emit(ctx, domain.EventOrderUpdated, view)
	return view, nil
}

// SoftDelete переводит редактируемый заказ в DELETED.
func (e *Engine) SoftDelete(ctx context.Context, orderID string) (err error) {
	start := time.Now()
	logger := e.logger.WithFields(log.Fields{
		"operation": opSoftDelete,
		"order_id":  orderID,
	})
	defer func() { e.observe(logger, opSoftDelete, start, err) }()

	current, err := e.load(ctx, orderID)
	if err != nil {
		return err
	}
	logger = logger.WithField("owner_id", current.OwnerID)

	if !domain.Deletable(current) {
		return domain.NewInvalidStatusError(current.Status)
	}

	current.Status = domain.OrderStatusDeleted
	saved, err := e.save(ctx, current)
	if err != nil {
		return err
	}

	e.evict(ctx, logger, orderID)
	e.emitter.Emit(ctx, domain.EventOrderDeleted, saved.View())
	return nil
}

// PurgeByOwner физически удаляет все заказы владельца и очищает кэш.
func (e *Engine) PurgeByOwner(ctx context.Context, ownerID string) (removed int, err error) {
	start := time.Now()
	logger := e.logger.WithFields(log.Fields{
		"operation": opPurgeByOwner,
		"owner_id":  ownerID,
	})
	defer func() { e.observe(logger.WithField("removed", removed), opPurgeByOwner, start, err) }()

	return e.purger.Purge(ctx, ownerID)
}

func validateUpdate(req UpdateOrderRequest) error {
	var errs []error
	if err := domain.ValidateQuantity(req.Quantity); err != nil {
		errs = append(errs, err)
	}
	if err := domain.ValidateUnitPrice(req.UnitPrice); err != nil {
		errs = append(errs, err)
	}
	switch {
	case !req.Status.Valid():
		errs = append(errs, domain.ErrUnknownStatus)
	case req.Status == domain.OrderStatusDeleted:
		errs = append(errs, domain.ErrDeleteViaUpdate)
	}
	return errors.Join(errs...)
}

func (e *Engine) load(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := e.repo.GetByOrderID(ctx, orderID)
	if err == nil {
		return order, nil
	}
	if errors.Is(err, domain.ErrOrderNotFound) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return domain.Order{}, fmt.Errorf("load order %s: %w", orderID, err)
}

func (e *Engine) save(ctx context.Context, order domain.Order) (domain.Order, error) {
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}

	saved, err := e.repo.Save(ctx, order)
	switch {
	case err == nil:
		return saved, nil
	case errors.Is(err, domain.ErrOrderNotFound):
		return domain.Order{}, domain.ErrOrderNotFound
	case errors.Is(err, domain.ErrOrderVersionConflict):
		return domain.Order{}, domain.ErrOrderVersionConflict
	default:
		return domain.Order{}, fmt.Errorf("save order %s: %w", order.OrderID, err)
	}
}

// evict удаляет запись из кэша после успешной записи. Ошибка не отменяет
// операцию: устаревший снимок истечёт по TTL.
func (e *Engine) evict(ctx context.Context, logger *log.Entry, orderID string) {
	if err := e.cache.Evict(ctx, orderID); err != nil {
		e.metrics.RecordCacheError("evict")
		logger.WithError(err).Error("failed to evict order from cache after write")
	}
}

func (e *Engine) observe(logger *log.Entry, operation string, start time.Time, err error) {
	took := time.Since(start)
	e.metrics.RecordOperation(operation, err, took)

	logger = logger.WithField("took", took.String())
	switch {
	case err == nil:
		logger.Debug("order operation completed")
	case isClientError(err):
		logger.WithError(err).Info("order operation rejected")
	default:
		logger.WithError(err).Error("order operation failed")
	}
}

func isClientError(err error) bool {
	return domain.IsValidationError(err) ||
		domain.IsInvalidStatus(err) ||
		domain.IsVersionConflict(err) ||
		errors.Is(err, domain.ErrOrderNotFound) ||
		errors.Is(err, domain.ErrOrderAlreadyExists)
}
