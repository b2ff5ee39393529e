package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/tracing"
)

// CatalogSource — чтение каталога, нужное для расчёта заказа.
type CatalogSource interface {
	GetVariationBySKU(ctx context.Context, sku string) (domain.Variation, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
}

// ItemRequest — позиция из запроса клиента.
type ItemRequest struct {
	SKU      string
	Quantity int
}

// PricedOrder — результат расчёта: позиции в порядке запроса и итог.
type PricedOrder struct {
	Items []domain.LineItem
	Total decimal.Decimal
	// PromotionsApplied — сколько позиций получили скидку.
	PromotionsApplied int
}

// Engine считает цены позиций и общий итог заказа.
type Engine struct {
	catalog  CatalogSource
	resolver *Resolver
}

// NewEngine создаёт Engine.
func NewEngine(catalog CatalogSource, resolver *Resolver) *Engine {
	return &Engine{catalog: catalog, resolver: resolver}
}

// ValidateItems проверяет запрос до обращения к хранилищу.
func ValidateItems(items []ItemRequest) error {
	if len(items) == 0 {
		return domain.ErrItemsRequired
	}
	for i, item := range items {
		if strings.TrimSpace(item.SKU) == "" {
			return fmt.Errorf("item %d: %w", i, domain.ErrSKURequired)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("item %d (%s): %w", i, item.SKU, domain.ErrInvalidQuantity)
		}
	}
	return nil
}

// PriceOrder последовательно разрешает каждую позицию. Любая ошибка прерывает расчёт целиком.
// Повторяющиеся SKU проверяются по суммарному количеству.
func (e *Engine) PriceOrder(ctx context.Context, items []ItemRequest, now time.Time) (PricedOrder, error) {
	ctx, span := tracing.Tracer().Start(ctx, "pricing.PriceOrder")
	defer span.End()
	span.SetAttributes(attribute.Int("order.items", len(items)))

	if err := ValidateItems(items); err != nil {
		tracing.RecordError(span, err)
		return PricedOrder{}, err
	}

	requested := make(map[string]int, len(items))
	result := PricedOrder{Items: make([]domain.LineItem, 0, len(items))}
	subtotal := decimal.Zero

	for _, item := range items {
		line, applied, err := e.priceItem(ctx, strings.TrimSpace(item.SKU), item.Quantity, requested, now)
		if err != nil {
			tracing.RecordError(span, err)
			return PricedOrder{}, err
		}
		if applied {
			result.PromotionsApplied++
		}
		result.Items = append(result.Items, line)
		subtotal = subtotal.Add(line.Subtotal())
	}

	result.Total = domain.RoundMoney(subtotal)
	return result, nil
}

func (e *Engine) priceItem(ctx context.Context, sku string, qty int, requested map[string]int, now time.Time) (domain.LineItem, bool, error) {
	variation, err := e.catalog.GetVariationBySKU(ctx, sku)
	if err != nil {
		return domain.LineItem{}, false, fmt.Errorf("sku %s: %w", sku, err)
	}

	requested[sku] += qty
	if variation.Stock < requested[sku] {
		return domain.LineItem{}, false, &domain.InsufficientStockError{
			SKU:       sku,
			Available: variation.Stock,
			Requested: requested[sku],
		}
	}

	product, err := e.catalog.GetProduct(ctx, variation.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return domain.LineItem{}, false, fmt.Errorf("%w: sku %s -> product %s", domain.ErrProductIntegrity, sku, variation.ProductID)
		}
		return domain.LineItem{}, false, fmt.Errorf("product %s: %w", variation.ProductID, err)
	}

	beforeDiscount := product.BasePrice.Add(variation.PriceDelta)
	if beforeDiscount.IsNegative() {
		return domain.LineItem{}, false, fmt.Errorf("sku %s: %w", sku, domain.ErrInvalidPrice)
	}

	unitPrice, promo, err := e.resolver.Resolve(ctx, product.ID, beforeDiscount, now)
	if err != nil {
		return domain.LineItem{}, false, err
	}

	line := domain.LineItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		SKU:         variation.SKU,
		Attributes:  domain.CloneAttributes(variation.Attributes),
		Quantity:    qty,
		UnitPrice:   unitPrice,
	}
	if promo != nil {
		line.PromotionID = promo.ID
	}
	return line, promo != nil, nil
}
