// Package catalog управляет справочными сущностями магазина:
// пользователями, товарами, вариациями и промоакциями.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Service — CRUD-сценарии каталога. Значения по умолчанию применяются здесь один раз.
type Service struct {
	users      domain.UserRepository
	catalog    domain.CatalogRepository
	promotions domain.PromotionRepository
	logger     *log.Entry
	now        func() time.Time
}

// NewService создаёт сервис каталога.
func NewService(users domain.UserRepository, catalog domain.CatalogRepository, promotions domain.PromotionRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{
		users:      users,
		catalog:    catalog,
		promotions: promotions,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateUser регистрирует пользователя с серверным ID.
func (s *Service) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	user = domain.NormalizeUser(user, s.now())
	user.ID = domain.NewID()
	if errs := user.Validate(); len(errs) > 0 {
		return domain.User{}, errors.Join(errs...)
	}
	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, err
	}
	s.logger.WithField("user_id", user.ID).Info("user created")
	return user, nil
}

// GetUser возвращает пользователя.
func (s *Service) GetUser(ctx context.Context, rawID string) (domain.User, error) {
	id, err := domain.ParseID("user_id", rawID)
	if err != nil {
		return domain.User{}, err
	}
	return s.users.Get(ctx, id)
}

// CreateProduct добавляет товар в каталог.
func (s *Service) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	product = domain.NormalizeProduct(product, s.now())
	product.ID = domain.NewID()
	if errs := product.Validate(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}
	if err := s.catalog.CreateProduct(ctx, product); err != nil {
		return domain.Product{}, err
	}
	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"category":   product.Category,
	}).Info("product created")
	return product, nil
}

// GetProduct возвращает товар.
func (s *Service) GetProduct(ctx context.Context, rawID string) (domain.Product, error) {
	id, err := domain.ParseID("product_id", rawID)
	if err != nil {
		return domain.Product{}, err
	}
	return s.catalog.GetProduct(ctx, id)
}

// CreateVariation добавляет вариацию к существующему товару.
func (s *Service) CreateVariation(ctx context.Context, variation domain.Variation) (domain.Variation, error) {
	productID, err := domain.ParseID("product_id", variation.ProductID)
	if err != nil {
		return domain.Variation{}, err
	}
	variation = domain.NormalizeVariation(variation)
	variation.ProductID = productID
	variation.ID = domain.NewID()
	if errs := variation.Validate(); len(errs) > 0 {
		return domain.Variation{}, errors.Join(errs...)
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.Variation{}, err
	}
	if product.BasePrice.Add(variation.PriceDelta).IsNegative() {
		return domain.Variation{}, fmt.Errorf("%w: base price plus delta is negative", domain.ErrInvalidPrice)
	}

	if err := s.catalog.CreateVariation(ctx, variation); err != nil {
		return domain.Variation{}, err
	}
	s.logger.WithFields(log.Fields{
		"product_id": productID,
		"sku":        variation.SKU,
		"stock":      variation.Stock,
	}).Info("variation created")
	return variation, nil
}

// GetVariation возвращает вариацию по SKU.
func (s *Service) GetVariation(ctx context.Context, sku string) (domain.Variation, error) {
	if sku == "" {
		return domain.Variation{}, domain.ErrSKURequired
	}
	return s.catalog.GetVariationBySKU(ctx, sku)
}

// ListVariations возвращает вариации товара или ErrProductNotFound, если товара нет.
func (s *Service) ListVariations(ctx context.Context, rawProductID string) ([]domain.Variation, error) {
	product, err := s.GetProduct(ctx, rawProductID)
	if err != nil {
		return nil, err
	}
	return s.catalog.ListVariationsByProduct(ctx, product.ID)
}

// CreatePromotion проверяет период, скидку и применимые товары и сохраняет акцию.
func (s *Service) CreatePromotion(ctx context.Context, promotion domain.Promotion) (domain.Promotion, error) {
	promotion.ID = domain.NewID()
	promotion.StartsAt = promotion.StartsAt.UTC()
	promotion.EndsAt = promotion.EndsAt.UTC()

	ids := make([]string, 0, len(promotion.ApplicableProductIDs))
	seen := make(map[string]struct{}, len(promotion.ApplicableProductIDs))
	for _, raw := range promotion.ApplicableProductIDs {
		id, err := domain.ParseID("applicable_product_id", raw)
		if err != nil {
			return domain.Promotion{}, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	promotion.ApplicableProductIDs = ids

	if err := promotion.Validate(); err != nil {
		return domain.Promotion{}, err
	}
	for _, id := range ids {
		if _, err := s.catalog.GetProduct(ctx, id); err != nil {
			return domain.Promotion{}, err
		}
	}

	if err := s.promotions.Create(ctx, promotion); err != nil {
		return domain.Promotion{}, err
	}
	s.logger.WithFields(log.Fields{
		"promotion_id": promotion.ID,
		"kind":         promotion.Kind,
		"products":     len(ids),
	}).Info("promotion created")
	return promotion, nil
}

// GetPromotion возвращает промоакцию.
func (s *Service) GetPromotion(ctx context.Context, rawID string) (domain.Promotion, error) {
	id, err := domain.ParseID("promotion_id", rawID)
	if err != nil {
		return domain.Promotion{}, err
	}
	return s.promotions.Get(ctx, id)
}

// ActivePromotions возвращает акции товара, действующие сейчас.
func (s *Service) ActivePromotions(ctx context.Context, rawProductID string) ([]domain.Promotion, error) {
	id, err := domain.ParseID("product_id", rawProductID)
	if err != nil {
		return nil, err
	}
	return s.promotions.ListActiveForProduct(ctx, id, s.now())
}

// ListProducts возвращает товары по фильтру.
func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	filter.Category = domain.Category(strings.ToLower(strings.TrimSpace(string(filter.Category))))
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, filter.Category)
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && filter.MinPrice.GreaterThan(*filter.MaxPrice) {
		return nil, fmt.Errorf("%w: min price is greater than max price", domain.ErrInvalidFilter)
	}
	return s.catalog.ListProducts(ctx, filter)
}

// UpdateProduct перезаписывает редактируемые поля товара. Дата регистрации сохраняется,
// уже оформленные заказы хранят прежнюю цену в своих позициях.
func (s *Service) UpdateProduct(ctx context.Context, rawID string, changes domain.Product) (domain.Product, error) {
	current, err := s.GetProduct(ctx, rawID)
	if err != nil {
		return domain.Product{}, err
	}

	changes.ID = current.ID
	changes.RegisteredAt = current.RegisteredAt
	product := domain.NormalizeProduct(changes, s.now())
	if errs := product.Validate(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}
	if err := s.catalog.UpdateProduct(ctx, product); err != nil {
		return domain.Product{}, err
	}
	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"base_price": product.BasePrice.StringFixed(2),
	}).Info("product updated")
	return product, nil
}

// AdjustStock пополняет (delta > 0) или списывает (delta < 0) остаток вариации.
func (s *Service) AdjustStock(ctx context.Context, sku string, delta int) (domain.Variation, error) {
	if sku == "" {
		return domain.Variation{}, domain.ErrSKURequired
	}
	if delta == 0 {
		return domain.Variation{}, domain.ErrInvalidStockAdjustment
	}
	variation, err := s.catalog.AdjustStock(ctx, sku, delta)
	if err != nil {
		return domain.Variation{}, err
	}
	s.logger.WithFields(log.Fields{
		"sku":   sku,
		"delta": delta,
		"stock": variation.Stock,
	}).Info("stock adjusted")
	return variation, nil
}

// ListPromotions возвращает акции по типу скидки и состоянию на текущий момент.
func (s *Service) ListPromotions(ctx context.Context, filter domain.PromotionFilter) ([]domain.Promotion, error) {
	if filter.State != "" && !filter.State.Valid() {
		return nil, fmt.Errorf("%w: unknown promotion state %q", domain.ErrInvalidFilter, filter.State)
	}
	if filter.Kind != "" && filter.Kind != domain.DiscountPercentage && filter.Kind != domain.DiscountFixedAmount {
		return nil, fmt.Errorf("%w: unknown discount kind %q", domain.ErrInvalidFilter, filter.Kind)
	}
	filter.At = s.now()
	return s.promotions.List(ctx, filter)
}
