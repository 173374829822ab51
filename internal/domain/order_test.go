package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

// helper для создания базового заказа.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	price := decimal.RequireFromString("12.50")
	return domain.Order{
		InternalID:      1,
		OrderID:         "order-1",
		ExternalOrderID: "ext-1",
		OwnerID:         "owner-1",
		Product:         "book",
		Quantity:        4,
		UnitPrice:       price,
		TotalPrice:      domain.CalculateTotal(price, 4),
		Status:          domain.OrderStatusPending,
		ExpirationDate:  now.Add(time.Hour),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{
			name: "no order id",
			mut:  func(o *domain.Order) { o.OrderID = " " },
			want: domain.ErrOrderIDRequired,
		},
		{
			name: "no external id",
			mut:  func(o *domain.Order) { o.ExternalOrderID = "" },
			want: domain.ErrExternalOrderIDRequired,
		},
		{
			name: "no owner",
			mut:  func(o *domain.Order) { o.OwnerID = "" },
			want: domain.ErrOwnerRequired,
		},
		{
			name: "zero quantity",
			mut: func(o *domain.Order) {
				o.Quantity = 0
				o.RecalculateTotal()
			},
			want: domain.ErrQuantityInvalid,
		},
		{
			name: "negative price",
			mut: func(o *domain.Order) {
				o.UnitPrice = decimal.NewFromInt(-1)
				o.RecalculateTotal()
			},
			want: domain.ErrUnitPriceNegative,
		},
		{
			name: "price finer than storage scale",
			mut: func(o *domain.Order) {
				o.UnitPrice = decimal.RequireFromString("0.00005")
				o.Quantity = 3
				o.RecalculateTotal()
			},
			want: domain.ErrUnitPriceScale,
		},
		{
			name: "quantity above int32",
			mut: func(o *domain.Order) {
				o.Quantity = domain.MaxQuantity + 1
				o.RecalculateTotal()
			},
			want: domain.ErrQuantityTooLarge,
		},
		{
			name: "unknown status",
			mut:  func(o *domain.Order) { o.Status = "ARCHIVED" },
			want: domain.ErrUnknownStatus,
		},
		{
			name: "total mismatch",
			mut:  func(o *domain.Order) { o.TotalPrice = decimal.NewFromInt(1) },
			want: domain.ErrTotalMismatch,
		},
		{
			name: "expiration before creation",
			mut:  func(o *domain.Order) { o.ExpirationDate = o.CreatedAt.Add(-time.Second) },
			want: domain.ErrExpirationBeforeCreation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)
			errs := order.ValidateInvariants()
			if len(errs) == 0 {
				t.Fatalf("expected validation errors")
			}
			found := false
			for _, err := range errs {
				if errors.Is(err, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestOrderRecalculateTotal(t *testing.T) {
	order := makeOrder()
	order.Quantity = 3
	order.UnitPrice = decimal.RequireFromString("0.10")
	order.RecalculateTotal()

	if !order.TotalPrice.Equal(decimal.RequireFromString("0.30")) {
		t.Fatalf("expected total 0.30, got %s", order.TotalPrice)
	}
}

func TestOrderAliveFollowsStatus(t *testing.T) {
	cases := map[domain.OrderStatus]bool{
		domain.OrderStatusPending:       true,
		domain.OrderStatusConfirmed:     true,
		domain.OrderStatusProcessing:    true,
		domain.OrderStatusShipped:       true,
		domain.OrderStatusOutOfDelivery: true,
		domain.OrderStatusDelivered:     true,
		domain.OrderStatusFailed:        true,
		domain.OrderStatusCompleted:     false,
		domain.OrderStatusDeleted:       false,
	}
	for status, want := range cases {
		order := makeOrder()
		order.Status = status
		if got := order.Alive(); got != want {
			t.Fatalf("status %s: expected alive=%v, got %v", status, want, got)
		}
		if got := order.View().Alive; got != want {
			t.Fatalf("status %s: view alive=%v, want %v", status, got, want)
		}
	}
}

func TestOrderViewOmitsInternalID(t *testing.T) {
	order := makeOrder()
	view := order.View()
	if view.OrderID != order.OrderID || view.OwnerID != order.OwnerID {
		t.Fatalf("unexpected view %+v", view)
	}
	if !view.TotalPrice.Equal(order.TotalPrice) {
		t.Fatalf("expected total %s, got %s", order.TotalPrice, view.TotalPrice)
	}
}

func TestParseOrderStatus(t *testing.T) {
	status, err := domain.ParseOrderStatus(" confirmed ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if status != domain.OrderStatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", status)
	}

	if _, err := domain.ParseOrderStatus("lost"); !errors.Is(err, domain.ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
	if len(domain.Statuses()) != 9 {
		t.Fatalf("expected 9 statuses, got %d", len(domain.Statuses()))
	}
}

func TestPageRequestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   domain.PageRequest
		want domain.PageRequest
	}{
		{name: "defaults", in: domain.PageRequest{}, want: domain.PageRequest{Page: 0, Size: domain.DefaultPageSize}},
		{name: "negative page", in: domain.PageRequest{Page: -2, Size: 5}, want: domain.PageRequest{Page: 0, Size: 5}},
		{name: "size capped", in: domain.PageRequest{Page: 1, Size: 1000}, want: domain.PageRequest{Page: 1, Size: domain.MaxPageSize}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.Normalize(); got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestNewPage(t *testing.T) {
	page := domain.NewPage(nil, domain.PageRequest{Page: 1, Size: 2}, 5)
	if page.TotalPages != 3 {
		t.Fatalf("expected 3 pages, got %d", page.TotalPages)
	}
	if page.Items == nil || len(page.Items) != 0 {
		t.Fatalf("expected empty non-nil items")
	}

	empty := domain.NewPage(nil, domain.PageRequest{}, 0)
	if empty.TotalPages != 0 || empty.Size != domain.DefaultPageSize {
		t.Fatalf("unexpected empty page %+v", empty)
	}
}

func TestStorageLimits(t *testing.T) {
	if err := domain.ValidateQuantity(domain.MaxQuantity); err != nil {
		t.Fatalf("max quantity must be accepted: %v", err)
	}
	if err := domain.ValidateUnitPrice(decimal.RequireFromString("12.3400")); err != nil {
		t.Fatalf("trailing zeros within scale must be accepted: %v", err)
	}
	if err := domain.ValidateUnitPrice(decimal.RequireFromString("0.0001")); err != nil {
		t.Fatalf("price at scale must be accepted: %v", err)
	}
	if err := domain.ValidateUnitPrice(decimal.RequireFromString("0.00001")); !errors.Is(err, domain.ErrUnitPriceScale) {
		t.Fatalf("expected ErrUnitPriceScale, got %v", err)
	}
	if err := domain.ValidateTTL(domain.MaxTTLSeconds); err != nil {
		t.Fatalf("max ttl must be accepted: %v", err)
	}
	if err := domain.ValidateTTL(18446744074); !errors.Is(err, domain.ErrTTLTooLarge) {
		t.Fatalf("expected ErrTTLTooLarge, got %v", err)
	}
	if err := domain.ValidateTTL(-1); !errors.Is(err, domain.ErrTTLNegative) {
		t.Fatalf("expected ErrTTLNegative, got %v", err)
	}
}
