package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountKind — тип скидки промоакции.
type DiscountKind string

const (
	// DiscountPercentage — скидка в процентах от цены, значение в (0, 100].
	DiscountPercentage DiscountKind = "percentage"
	// DiscountFixedAmount — скидка фиксированной суммой.
	DiscountFixedAmount DiscountKind = "fixed_amount"
)

var hundred = decimal.NewFromInt(100)

// Promotion — ограниченное по времени правило скидки для набора товаров.
type Promotion struct {
	ID                   string
	Name                 string
	StartsAt             time.Time
	EndsAt               time.Time
	Kind                 DiscountKind
	Value                decimal.Decimal
	ApplicableProductIDs []string
}

// Validate проверяет период и значение скидки.
// Ошибки периода и значения оборачивают ErrInvalidDiscount.
func (p *Promotion) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrNameRequired
	}
	if !p.EndsAt.After(p.StartsAt) {
		return fmt.Errorf("%w: end must be strictly after start", ErrInvalidDiscount)
	}

	if !HasMoneyScale(p.Value) {
		return fmt.Errorf("%w: value must have at most 2 decimal places, got %s", ErrInvalidDiscount, p.Value.String())
	}

	switch p.Kind {
	case DiscountPercentage:
		if !p.Value.IsPositive() || p.Value.GreaterThan(hundred) {
			return fmt.Errorf("%w: percentage must be in (0, 100], got %s", ErrInvalidDiscount, p.Value.String())
		}
	case DiscountFixedAmount:
		if !p.Value.IsPositive() {
			return fmt.Errorf("%w: fixed amount must be positive, got %s", ErrInvalidDiscount, p.Value.String())
		}
	default:
		return fmt.Errorf("%w: unknown discount kind %q", ErrInvalidDiscount, p.Kind)
	}

	if len(p.ApplicableProductIDs) == 0 {
		return fmt.Errorf("%w: promotion must apply to at least one product", ErrInvalidDiscount)
	}

	return nil
}

// ActiveAt сообщает, попадает ли момент now в [StartsAt, EndsAt].
func (p *Promotion) ActiveAt(now time.Time) bool {
	return !now.Before(p.StartsAt) && !now.After(p.EndsAt)
}

// AppliesTo проверяет, входит ли товар в список применимых.
func (p *Promotion) AppliesTo(productID string) bool {
	for _, id := range p.ApplicableProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// Apply возвращает цену после скидки: не меньше нуля, округлённую до 2 знаков.
func (p *Promotion) Apply(price decimal.Decimal) decimal.Decimal {
	var discounted decimal.Decimal
	switch p.Kind {
	case DiscountPercentage:
		discounted = price.Mul(decimal.NewFromInt(1).Sub(p.Value.Div(hundred)))
	case DiscountFixedAmount:
		discounted = price.Sub(p.Value)
	default:
		discounted = price
	}

	if discounted.IsNegative() {
		discounted = decimal.Zero
	}
	return RoundMoney(discounted)
}

// HasMoneyScale сообщает, что у значения не больше 2 знаков после запятой:
// столько хранит NUMERIC(14, 2), лишние знаки БД молча округлила бы.
func HasMoneyScale(v decimal.Decimal) bool {
	return v.Equal(v.Round(2))
}

// RoundMoney округляет денежную сумму до 2 знаков (half away from zero).
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}
