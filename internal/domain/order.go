package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, товар списан со склада.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — заказ собирается.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — доставлен клиенту, терминальный.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — отменён, терминальный.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус известен.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
}

// CanTransition проверяет переход from -> to по state machine заказа.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentMethod — способ оплаты заказа.
type PaymentMethod string

const (
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentDebitCard  PaymentMethod = "debit_card"
	PaymentPix        PaymentMethod = "pix"
	PaymentBankSlip   PaymentMethod = "bank_slip"
	PaymentTransfer   PaymentMethod = "transfer"
)

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCreditCard, PaymentDebitCard, PaymentPix, PaymentBankSlip, PaymentTransfer:
		return true
	default:
		return false
	}
}

// LineItem — снимок позиции на момент покупки. Последующие изменения
// каталога и промоакций на него не влияют.
type LineItem struct {
	ProductID   string
	ProductName string
	SKU         string
	Attributes  map[string]string
	Quantity    int
	// UnitPrice — цена за единицу после скидки, 2 знака.
	UnitPrice decimal.Decimal
	// PromotionID пустой, если скидка не применялась.
	PromotionID string
}

// Subtotal возвращает quantity * unitPrice без округления.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID            string
	UserID        string
	Status        OrderStatus
	PaymentMethod PaymentMethod
	Items         []LineItem
	Total         decimal.Decimal
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SumItems считает round(sum(qty * unitPrice), 2).
func SumItems(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return RoundMoney(total)
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrInvalidIdentifier)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrInvalidOrderStatus)
	}
	if !o.PaymentMethod.Valid() {
		errs = append(errs, ErrInvalidPaymentMethod)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrInvalidQuantity)
		}
		if item.SKU == "" {
			errs = append(errs, ErrSKURequired)
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, ErrInvalidPrice)
		}
	}
	if !SumItems(o.Items).Equal(o.Total) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// StockDemand суммирует запрошенное количество по SKU.
// Порядок ключей соответствует первому появлению SKU в items.
func StockDemand(items []LineItem) ([]string, map[string]int) {
	order := make([]string, 0, len(items))
	demand := make(map[string]int, len(items))
	for _, item := range items {
		if _, seen := demand[item.SKU]; !seen {
			order = append(order, item.SKU)
		}
		demand[item.SKU] += item.Quantity
	}
	return order, demand
}
