package domain

import "github.com/shopspring/decimal"

// Предикаты ниже не возвращают ошибок: вызывающий код сам превращает false
// в доменную ошибку.

// PriceOrQuantityChanged сообщает, отличаются ли количество или цена от текущих.
// Цены сравниваются численно, поэтому 10 и 10.00 считаются равными.
func PriceOrQuantityChanged(quantity int, unitPrice decimal.Decimal, current Order) bool {
	return quantity != current.Quantity || !unitPrice.Equal(current.UnitPrice)
}

// MutableFieldsEditable разрешает правку цены, количества и товара только в PENDING и CONFIRMED.
func MutableFieldsEditable(current Order) bool {
	switch current.Status {
	case OrderStatusPending, OrderStatusConfirmed:
		return true
	default:
		return false
	}
}

// IsAlive возвращает false для инертных статусов COMPLETED и DELETED.
func IsAlive(status OrderStatus) bool {
	switch status {
	case OrderStatusCompleted, OrderStatusDeleted:
		return false
	default:
		return true
	}
}

// Deletable совпадает с MutableFieldsEditable: удалить можно только редактируемый заказ.
func Deletable(current Order) bool {
	return MutableFieldsEditable(current)
}
