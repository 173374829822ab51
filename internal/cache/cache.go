// Package cache содержит реализации lookaside-кэша проекций заказов.
//
// Запись живёт фиксированное время с момента вставки; чтение срок не продлевает.
package cache

import "time"

// DefaultTTL: время жизни записи по умолчанию.
const DefaultTTL = 30 * time.Minute

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
