package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

func TestOwnerEventUnmarshal(t *testing.T) {
	cases := []struct {
		name     string
		payload  string
		wantID   string
		wantKind domain.OwnerEventKind
		deletion bool
	}{
		{
			name:     "canonical fields",
			payload:  `{"owner_id":"u-1","event_type":"OWNER_DELETED","timestamp":"2024-01-02T03:04:05Z"}`,
			wantID:   "u-1",
			wantKind: domain.OwnerEventDeleted,
			deletion: true,
		},
		{
			name:     "numeric id and camel case kind",
			payload:  `{"id":42,"eventType":"user_deleted"}`,
			wantID:   "42",
			wantKind: domain.OwnerEventUserDeleted,
			deletion: true,
		},
		{
			name:     "other kind",
			payload:  `{"id":"7","event_type":"USER_CREATED"}`,
			wantID:   "7",
			wantKind: "USER_CREATED",
			deletion: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var event domain.OwnerEvent
			if err := json.Unmarshal([]byte(tc.payload), &event); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if event.OwnerID != tc.wantID {
				t.Fatalf("expected owner %q, got %q", tc.wantID, event.OwnerID)
			}
			if event.EventType != tc.wantKind {
				t.Fatalf("expected kind %q, got %q", tc.wantKind, event.EventType)
			}
			if event.EventType.IsDeletion() != tc.deletion {
				t.Fatalf("expected deletion=%v", tc.deletion)
			}
		})
	}
}

func TestOwnerEventUnmarshalRejectsInvalidID(t *testing.T) {
	var event domain.OwnerEvent
	if err := json.Unmarshal([]byte(`{"id":{"nested":true},"event_type":"OWNER_DELETED"}`), &event); err == nil {
		t.Fatalf("expected error for object id")
	}
}

func TestOrderEventJSONFlattensView(t *testing.T) {
	view := makeOrder().View()
	event := domain.NewOrderEvent(domain.EventOrderCreated, view)

	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fields["order_id"] != view.OrderID {
		t.Fatalf("expected flattened order_id, got %v", fields["order_id"])
	}
	if fields["event_type"] != string(domain.EventOrderCreated) {
		t.Fatalf("expected event_type, got %v", fields["event_type"])
	}
	if fields["total_price"] != "50" {
		t.Fatalf("expected decimal as string, got %v", fields["total_price"])
	}
}
