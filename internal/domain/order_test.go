package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:            domain.NewID(),
		UserID:        domain.NewID(),
		Status:        domain.OrderStatusPending,
		PaymentMethod: domain.PaymentPix,
		Total:         decimal.RequireFromString("220.00"),
		Items: []domain.LineItem{
			{
				ProductID:   domain.NewID(),
				ProductName: "T-shirt",
				SKU:         "V1",
				Attributes:  map[string]string{"size": "M"},
				Quantity:    2,
				UnitPrice:   decimal.RequireFromString("110.00"),
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
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
	}{
		{name: "no user", mut: func(o *domain.Order) { o.UserID = "" }},
		{name: "bad status", mut: func(o *domain.Order) { o.Status = "lost" }},
		{name: "bad payment", mut: func(o *domain.Order) { o.PaymentMethod = "barter" }},
		{name: "no items", mut: func(o *domain.Order) { o.Items = nil }},
		{name: "qty invalid", mut: func(o *domain.Order) { o.Items[0].Quantity = 0 }},
		{name: "price invalid", mut: func(o *domain.Order) { o.Items[0].UnitPrice = decimal.NewFromInt(-5) }},
		{name: "total mismatch", mut: func(o *domain.Order) { o.Total = decimal.NewFromInt(999) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			if len(order.ValidateInvariants()) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
		})
	}
}

func TestSumItemsRoundsHalfAwayFromZero(t *testing.T) {
	items := []domain.LineItem{
		{Quantity: 3, UnitPrice: decimal.RequireFromString("0.335")},
	}
	// 3 * 0.335 = 1.005 -> 1.01
	if got := domain.SumItems(items); !got.Equal(decimal.RequireFromString("1.01")) {
		t.Fatalf("unexpected total %s", got)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to domain.OrderStatus
		want     bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusProcessing, true},
		{domain.OrderStatusPending, domain.OrderStatusCancelled, true},
		{domain.OrderStatusProcessing, domain.OrderStatusShipped, true},
		{domain.OrderStatusShipped, domain.OrderStatusDelivered, true},
		{domain.OrderStatusShipped, domain.OrderStatusCancelled, true},
		{domain.OrderStatusPending, domain.OrderStatusDelivered, false},
		{domain.OrderStatusDelivered, domain.OrderStatusCancelled, false},
		{domain.OrderStatusCancelled, domain.OrderStatusPending, false},
		{domain.OrderStatusProcessing, domain.OrderStatusPending, false},
	}

	for _, tc := range tests {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			if got := domain.CanTransition(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransition(%s, %s)=%v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestStockDemandMergesDuplicateSKUs(t *testing.T) {
	order, demand := domain.StockDemand([]domain.LineItem{
		{SKU: "B", Quantity: 1},
		{SKU: "A", Quantity: 2},
		{SKU: "B", Quantity: 4},
	})

	if len(order) != 2 || order[0] != "B" || order[1] != "A" {
		t.Fatalf("unexpected sku order %v", order)
	}
	if demand["B"] != 5 || demand["A"] != 2 {
		t.Fatalf("unexpected demand %v", demand)
	}
}
