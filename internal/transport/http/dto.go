package http

import (
	"github.com/shopspring/decimal"
)

// CreateOrderRequest: тело POST /api/orders. Поле order_id содержит
// внешний идентификатор заказа, публичный id назначает сервис.
type CreateOrderRequest struct {
	OrderID  string           `json:"order_id" validate:"required,max=128"`
	Product  string           `json:"product" validate:"required,max=256"`
	Quantity int              `json:"quantity" validate:"min=1,max=2147483647"`
	Price    *decimal.Decimal `json:"price" validate:"required,gte=0"`
	TTL      int64            `json:"ttl" validate:"gte=0,lte=2147483647"`
}

// UpdateOrderRequest: тело PUT /api/orders/{orderID}.
type UpdateOrderRequest struct {
	Product         string           `json:"product" validate:"required,max=256"`
	Quantity        int              `json:"quantity" validate:"min=1,max=2147483647"`
	Price           *decimal.Decimal `json:"price" validate:"required,gte=0"`
	Status          string           `json:"status" validate:"required"`
	ExpectedVersion *int64           `json:"expected_version,omitempty" validate:"omitempty,gte=0"`
}

// ErrorResponse: единый формат ошибки API.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}
