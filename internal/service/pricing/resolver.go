package pricing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/tracing"
)

// PromotionSource отдаёт активные на момент now промоакции товара.
type PromotionSource interface {
	ListActiveForProduct(ctx context.Context, productID string, now time.Time) ([]domain.Promotion, error)
}

// AppliedPromotion описывает скидку, применённую к цене.
type AppliedPromotion struct {
	ID    string
	Name  string
	Kind  domain.DiscountKind
	Value decimal.Decimal
}

// Resolver подбирает промоакцию для товара и считает итоговую цену. Ничего не пишет.
type Resolver struct {
	promotions PromotionSource
}

// NewResolver создаёт Resolver поверх источника промоакций.
func NewResolver(promotions PromotionSource) *Resolver {
	return &Resolver{promotions: promotions}
}

// Resolve возвращает цену после скидки и применённую акцию (nil, если акций нет).
//
// При нескольких активных акциях выигрывает та, что даёт минимальную цену;
// при равенстве побеждает акция с более ранним началом, затем с меньшим ID.
func (r *Resolver) Resolve(ctx context.Context, productID string, price decimal.Decimal, now time.Time) (decimal.Decimal, *AppliedPromotion, error) {
	ctx, span := tracing.Tracer().Start(ctx, "pricing.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID))

	promos, err := r.promotions.ListActiveForProduct(ctx, productID, now)
	if err != nil {
		tracing.RecordError(span, err)
		return decimal.Decimal{}, nil, fmt.Errorf("list active promotions: %w", err)
	}
	if len(promos) == 0 {
		return domain.RoundMoney(price), nil, nil
	}

	type candidate struct {
		promo domain.Promotion
		final decimal.Decimal
	}
	candidates := make([]candidate, 0, len(promos))
	for _, promo := range promos {
		// Хранилище могло отдать акцию, записанную в обход валидации.
		if err := promo.Validate(); err != nil {
			err = fmt.Errorf("%w: promotion %s: %v", domain.ErrInvalidDiscount, promo.ID, err)
			tracing.RecordError(span, err)
			return decimal.Decimal{}, nil, err
		}
		candidates = append(candidates, candidate{promo: promo, final: promo.Apply(price)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.final.Equal(b.final) {
			return a.final.LessThan(b.final)
		}
		if !a.promo.StartsAt.Equal(b.promo.StartsAt) {
			return a.promo.StartsAt.Before(b.promo.StartsAt)
		}
		return a.promo.ID < b.promo.ID
	})

	best := candidates[0]
	span.SetAttributes(attribute.String("promotion.id", best.promo.ID))
	return best.final, &AppliedPromotion{
		ID:    best.promo.ID,
		Name:  best.promo.Name,
		Kind:  best.promo.Kind,
		Value: best.promo.Value,
	}, nil
}
