package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего публичного идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего внешнего идентификатора заказа.
	ErrExternalOrderIDRequired = errors.New("external_order_id is required")
	// Ошибка отсутствующего владельца заказа.
	ErrOwnerRequired = errors.New("owner_id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrQuantityInvalid = errors.New("quantity must be greater than zero")
	// ErrQuantityTooLarge: количество не помещается в колонку INTEGER.
	ErrQuantityTooLarge = errors.New("quantity exceeds 2147483647")
	// Ошибка, если цена за единицу отрицательная.
	ErrUnitPriceNegative = errors.New("unit price must be non-negative")
	// ErrUnitPriceScale: у цены больше знаков после запятой, чем хранит NUMERIC(19, 4).
	ErrUnitPriceScale = errors.New("unit price must have at most 4 decimal places")
	// Ошибка отрицательного TTL заказа.
	ErrTTLNegative = errors.New("ttl must be non-negative")
	// ErrTTLTooLarge: TTL больше MaxTTLSeconds.
	ErrTTLTooLarge = errors.New("ttl exceeds 2147483647 seconds")
	// Ошибка несоответствия итоговой суммы и произведения цены на количество.
	ErrTotalMismatch = errors.New("total price does not match unit price * quantity")
	// Ошибка неизвестного статуса.
	ErrUnknownStatus = errors.New("unknown order status")
	// Ошибка, если срок жизни заказа заканчивается раньше его создания.
	ErrExpirationBeforeCreation = errors.New("expiration date is before creation date")
	// ErrDeleteViaUpdate: статус DELETED выставляется только операцией удаления.
	ErrDeleteViaUpdate = errors.New("status DELETED can only be set by delete operation")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists возвращается при повторном external_order_id.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrInvalidStatus: операция запрещена для текущего статуса заказа.
	ErrInvalidStatus = errors.New("forbidden operation for order status")
)

// InvalidStatusError несёт статус, из-за которого операция отклонена.
type InvalidStatusError struct {
	Status OrderStatus
}

// NewInvalidStatusError создаёт ошибку для статуса.
func NewInvalidStatusError(status OrderStatus) *InvalidStatusError {
	return &InvalidStatusError{Status: status}
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidStatus.Error(), e.Status)
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrInvalidStatus).
func (e *InvalidStatusError) Unwrap() error {
	return ErrInvalidStatus
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsInvalidStatus проверяет, что ошибка вызвана запрещённым статусом.
func IsInvalidStatus(err error) bool {
	return errors.Is(err, ErrInvalidStatus)
}

// IsValidationError сообщает, что ошибка относится к некорректным входным данным.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrOrderIDRequired,
		ErrExternalOrderIDRequired,
		ErrOwnerRequired,
		ErrQuantityInvalid,
		ErrQuantityTooLarge,
		ErrUnitPriceNegative,
		ErrUnitPriceScale,
		ErrTTLNegative,
		ErrTTLTooLarge,
		ErrTotalMismatch,
		ErrUnknownStatus,
		ErrExpirationBeforeCreation,
		ErrDeleteViaUpdate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
