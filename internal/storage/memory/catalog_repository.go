package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// CatalogRepository — in-memory каталог товаров и вариаций.
// Экспортируется как тип: OrderRepository берёт его блокировку при списании остатков.
type CatalogRepository struct {
	mu         sync.RWMutex
	products   map[string]domain.Product
	variations map[string]domain.Variation // по SKU
}

// NewCatalogRepository создаёт пустой каталог.
func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{
		products:   make(map[string]domain.Product),
		variations: make(map[string]domain.Variation),
	}
}

// CreateProduct сохраняет товар, если ID свободен.
func (r *CatalogRepository) CreateProduct(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[product.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.products[product.ID] = product
	return nil
}

// GetProduct возвращает товар или ErrProductNotFound.
func (r *CatalogRepository) GetProduct(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// ListProducts возвращает товары по фильтру, отсортированные по имени и ID.
func (r *CatalogRepository) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0)
	for _, product := range r.products {
		if filter.Matches(product) {
			result = append(result, product)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// UpdateProduct заменяет существующий товар.
func (r *CatalogRepository) UpdateProduct(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[product.ID]; !ok {
		return domain.ErrProductNotFound
	}
	r.products[product.ID] = product
	return nil
}

// CreateVariation сохраняет вариацию существующего товара с уникальным SKU.
func (r *CatalogRepository) CreateVariation(_ context.Context, variation domain.Variation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[variation.ProductID]; !ok {
		return domain.ErrProductNotFound
	}
	if _, exists := r.variations[variation.SKU]; exists {
		return domain.ErrDuplicateSKU
	}
	r.variations[variation.SKU] = cloneVariation(variation)
	return nil
}

// GetVariationBySKU возвращает копию вариации или ErrVariationNotFound.
func (r *CatalogRepository) GetVariationBySKU(_ context.Context, sku string) (domain.Variation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	variation, ok := r.variations[sku]
	if !ok {
		return domain.Variation{}, domain.ErrVariationNotFound
	}
	return cloneVariation(variation), nil
}

// ListVariationsByProduct возвращает вариации товара, отсортированные по SKU.
func (r *CatalogRepository) ListVariationsByProduct(_ context.Context, productID string) ([]domain.Variation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Variation, 0)
	for _, variation := range r.variations {
		if variation.ProductID == productID {
			result = append(result, cloneVariation(variation))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SKU < result[j].SKU })
	return result, nil
}

// AdjustStock меняет остаток под той же блокировкой, что и Place.
func (r *CatalogRepository) AdjustStock(_ context.Context, sku string, delta int) (domain.Variation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	variation, ok := r.variations[sku]
	if !ok {
		return domain.Variation{}, domain.ErrVariationNotFound
	}
	if variation.Stock+delta < 0 {
		return domain.Variation{}, &domain.InsufficientStockError{SKU: sku, Available: variation.Stock, Requested: -delta}
	}
	variation.Stock += delta
	r.variations[sku] = variation
	return cloneVariation(variation), nil
}

// decrementLocked проверяет и списывает остатки по всем SKU. Вызывается под r.mu.Lock.
// Либо списываются все позиции, либо ни одна.
func (r *CatalogRepository) decrementLocked(skus []string, demand map[string]int) error {
	for _, sku := range skus {
		variation, ok := r.variations[sku]
		if !ok {
			return domain.ErrVariationNotFound
		}
		if variation.Stock < demand[sku] {
			return &domain.InsufficientStockError{SKU: sku, Available: variation.Stock, Requested: demand[sku]}
		}
	}
	for _, sku := range skus {
		variation := r.variations[sku]
		variation.Stock -= demand[sku]
		r.variations[sku] = variation
	}
	return nil
}

func cloneVariation(src domain.Variation) domain.Variation {
	dst := src
	dst.Attributes = domain.CloneAttributes(src.Attributes)
	dst.ImageURLs = append([]string(nil), src.ImageURLs...)
	return dst
}

var _ domain.CatalogRepository = (*CatalogRepository)(nil)
