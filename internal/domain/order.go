package domain

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан и ещё может редактироваться.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusConfirmed: заказ подтверждён, цена и количество всё ещё редактируемы.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusProcessing: заказ передан в исполнение.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusShipped: заказ отгружен.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusOutOfDelivery: заказ у курьера.
	OrderStatusOutOfDelivery OrderStatus = "OUT_OF_DELIVERY"
	// OrderStatusDelivered: заказ доставлен.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusFailed: исполнение не удалось.
	OrderStatusFailed OrderStatus = "FAILED"
	// OrderStatusCompleted: терминальный статус, заказ больше не изменяется.
	OrderStatusCompleted OrderStatus = "COMPLETED"
	// OrderStatusDeleted: результат мягкого удаления.
	OrderStatusDeleted OrderStatus = "DELETED"
)

var allStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusOutOfDelivery,
	OrderStatusDelivered,
	OrderStatusFailed,
	OrderStatusCompleted,
	OrderStatusDeleted,
}

// Statuses возвращает все известные статусы в порядке жизненного цикла.
func Statuses() []OrderStatus {
	out := make([]OrderStatus, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsAlive сообщает, что заказ не находится в инертном терминальном статусе.
func (s OrderStatus) IsAlive() bool {
	return IsAlive(s)
}

// ParseOrderStatus разбирает статус без учёта регистра и пробелов.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", ErrUnknownStatus
	}
	return status, nil
}

// Order: долговременная запись заказа.
type Order struct {
	// InternalID назначается хранилищем и наружу не выдаётся.
	InternalID      int64
	OrderID         string
	ExternalOrderID string
	OwnerID         string
	Product         string
	Quantity        int
	UnitPrice       decimal.Decimal
	TotalPrice      decimal.Decimal
	Status          OrderStatus
	// Version используется для optimistic locking при сохранении.
	Version        int64
	ExpirationDate time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Alive вычисляется из статуса и отдельно не хранится в модели.
func (o Order) Alive() bool {
	return o.Status.IsAlive()
}

// RecalculateTotal пересчитывает итоговую сумму из цены и количества.
func (o *Order) RecalculateTotal() {
	o.TotalPrice = CalculateTotal(o.UnitPrice, o.Quantity)
}

// CalculateTotal возвращает unitPrice * quantity.
func CalculateTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(o.OrderID) == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if strings.TrimSpace(o.ExternalOrderID) == "" {
		errs = append(errs, ErrExternalOrderIDRequired)
	}
	if strings.TrimSpace(o.OwnerID) == "" {
		errs = append(errs, ErrOwnerRequired)
	}
	if err := ValidateQuantity(o.Quantity); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateUnitPrice(o.UnitPrice); err != nil {
		errs = append(errs, err)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrUnknownStatus)
	}
	// Итог обязан совпадать с произведением множителей.
	if !o.TotalPrice.Equal(CalculateTotal(o.UnitPrice, o.Quantity)) {
		errs = append(errs, ErrTotalMismatch)
	}
	if !o.ExpirationDate.IsZero() && o.ExpirationDate.Before(o.CreatedAt) {
		errs = append(errs, ErrExpirationBeforeCreation)
	}

	return errs
}

// Пределы хранилища: quantity лежит в INTEGER, цены в NUMERIC(19, 4).
const (
	MaxQuantity    = math.MaxInt32
	UnitPriceScale = 4
	MaxTTLSeconds  = math.MaxInt32
)

// ValidateQuantity проверяет, что количество положительно и помещается в INTEGER.
func ValidateQuantity(quantity int) error {
	switch {
	case quantity <= 0:
		return ErrQuantityInvalid
	case quantity > MaxQuantity:
		return ErrQuantityTooLarge
	}
	return nil
}

// ValidateUnitPrice отклоняет отрицательные цены и цены с лишними знаками,
// которые хранилище молча округлило бы.
func ValidateUnitPrice(price decimal.Decimal) error {
	switch {
	case price.IsNegative():
		return ErrUnitPriceNegative
	case !price.Equal(price.Round(UnitPriceScale)):
		return ErrUnitPriceScale
	}
	return nil
}

// ValidateTTL проверяет TTL в секундах.
func ValidateTTL(seconds int64) error {
	switch {
	case seconds < 0:
		return ErrTTLNegative
	case seconds > MaxTTLSeconds:
		return ErrTTLTooLarge
	}
	return nil
}

// View строит внешнюю проекцию заказа без суррогатного ключа.
func (o Order) View() OrderView {
	return OrderView{
		OrderID:         o.OrderID,
		ExternalOrderID: o.ExternalOrderID,
		OwnerID:         o.OwnerID,
		Product:         o.Product,
		Quantity:        o.Quantity,
		UnitPrice:       o.UnitPrice,
		TotalPrice:      o.TotalPrice,
		Status:          o.Status,
		Alive:           o.Alive(),
		Version:         o.Version,
		ExpirationDate:  o.ExpirationDate,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// OrderView: read-model проекция заказа, которую видят клиенты, кэш и события.
type OrderView struct {
	OrderID         string          `json:"order_id"`
	ExternalOrderID string          `json:"external_order_id"`
	OwnerID         string          `json:"owner_id"`
	Product         string          `json:"product"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Status          OrderStatus     `json:"status"`
	Alive           bool            `json:"alive"`
	Version         int64           `json:"version"`
	ExpirationDate  time.Time       `json:"expiration_date"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest задаёт страницу выборки; Page начинается с нуля.
type PageRequest struct {
	Page int
	Size int
}

// Normalize подставляет значения по умолчанию и ограничивает размер страницы.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset возвращает смещение первой записи страницы.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Page: страница проекций заказов.
type Page struct {
	Items      []OrderView `json:"items"`
	Page       int         `json:"page"`
	Size       int         `json:"size"`
	TotalItems int64       `json:"total_items"`
	TotalPages int         `json:"total_pages"`
}

// NewPage собирает страницу и считает количество страниц.
func NewPage(items []OrderView, req PageRequest, total int64) Page {
	req = req.Normalize()
	if items == nil {
		items = []OrderView{}
	}
	pages := 0
	if total > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page{
		Items:      items,
		Page:       req.Page,
		Size:       req.Size,
		TotalItems: total,
		TotalPages: pages,
	}
}
