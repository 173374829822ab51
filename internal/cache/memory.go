package cache

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

type memoryEntry struct {
	view      domain.OrderView
	expiresAt time.Time
}

// Memory: in-process кэш на map под sync.RWMutex.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// MemoryOption настраивает in-memory кэш.
type MemoryOption func(*Memory)

// WithClock подменяет источник времени, нужен тестам на истечение TTL.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory создаёт in-memory кэш с фиксированным TTL.
func NewMemory(ttl time.Duration, opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     normalizeTTL(ttl),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lookup возвращает проекцию, если запись есть и не истекла.
func (m *Memory) Lookup(_ context.Context, orderID string) (domain.OrderView, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[orderID]
	m.mu.RUnlock()
	if !ok {
		return domain.OrderView{}, false, nil
	}

	if !m.now().Before(entry.expiresAt) {
		m.mu.Lock()
		// Запись могла быть перезаписана между блокировками.
		if current, ok := m.entries[orderID]; ok && current.expiresAt.Equal(entry.expiresAt) {
			delete(m.entries, orderID)
		}
		m.mu.Unlock()
		return domain.OrderView{}, false, nil
	}
	return entry.view, true, nil
}

// Populate вставляет или перезаписывает запись, отсчёт TTL начинается заново.
func (m *Memory) Populate(_ context.Context, orderID string, view domain.OrderView) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[orderID] = memoryEntry{view: view, expiresAt: m.now().Add(m.ttl)}
	return nil
}

// Evict удаляет запись; отсутствие ключа не ошибка.
func (m *Memory) Evict(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, orderID)
	return nil
}

// Clear удаляет все записи.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]memoryEntry)
	return nil
}

// Sweep удаляет истёкшие записи и возвращает их количество.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// Len возвращает число записей, включая ещё не вычищенные истёкшие.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

var _ domain.OrderCache = (*Memory)(nil)
