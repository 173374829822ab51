package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventKind определяет тип события жизненного цикла заказа.
type EventKind string

const (
	EventOrderCreated EventKind = "ORDER_CREATED"
	EventOrderUpdated EventKind = "ORDER_UPDATED"
	EventOrderDeleted EventKind = "ORDER_DELETED"
)

// OrderEvent: полезная нагрузка исходящего события: проекция после изменения,
// тип события и момент эмиссии.
type OrderEvent struct {
	OrderView
	EventType EventKind `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOrderEvent создаёт событие заказа с текущим временем.
func NewOrderEvent(kind EventKind, view OrderView) OrderEvent {
	return OrderEvent{
		OrderView: view,
		EventType: kind,
		Timestamp: time.Now().UTC(),
	}
}

// OwnerEventKind: тип входящего события о владельце заказов.
type OwnerEventKind string

const (
	// OwnerEventDeleted сигнализирует об удалении владельца.
	OwnerEventDeleted OwnerEventKind = "OWNER_DELETED"
	// OwnerEventUserDeleted: имя того же события в потоке сервиса пользователей.
	OwnerEventUserDeleted OwnerEventKind = "USER_DELETED"
)

// IsDeletion сообщает, что событие означает удаление владельца.
func (k OwnerEventKind) IsDeletion() bool {
	switch OwnerEventKind(strings.ToUpper(strings.TrimSpace(string(k)))) {
	case OwnerEventDeleted, OwnerEventUserDeleted:
		return true
	default:
		return false
	}
}

// OwnerEvent: входящее событие жизненного цикла владельца.
type OwnerEvent struct {
	OwnerID   string         `json:"owner_id"`
	EventType OwnerEventKind `json:"event_type"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
}

// UnmarshalJSON принимает как owner_id/event_type, так и id/eventType сервиса
// пользователей; идентификатор может быть строкой или числом.
func (e *OwnerEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		OwnerID        json.RawMessage `json:"owner_id"`
		ID             json.RawMessage `json:"id"`
		EventType      string          `json:"event_type"`
		EventTypeCamel string          `json:"eventType"`
		Timestamp      *time.Time      `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	idRaw := raw.OwnerID
	if len(idRaw) == 0 || string(idRaw) == "null" {
		idRaw = raw.ID
	}
	ownerID, err := decodeIdentifier(idRaw)
	if err != nil {
		return fmt.Errorf("decode owner id: %w", err)
	}

	kind := raw.EventType
	if kind == "" {
		kind = raw.EventTypeCamel
	}

	e.OwnerID = ownerID
	e.EventType = OwnerEventKind(strings.ToUpper(strings.TrimSpace(kind)))
	e.Timestamp = time.Time{}
	if raw.Timestamp != nil {
		e.Timestamp = *raw.Timestamp
	}
	return nil
}

func decodeIdentifier(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}
