package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository.
// Place списывает остатки в каталоге и сохраняет заказ в одной критической секции.
type orderRepositoryInMemory struct {
	catalog *CatalogRepository

	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository(catalog *CatalogRepository) domain.OrderRepository {
	return &orderRepositoryInMemory{
		catalog: catalog,
		items:   make(map[string]domain.Order),
	}
}

// Place сохраняет заказ и списывает остатки атомарно относительно других Place.
// Порядок блокировок: каталог, затем заказы.
func (r *orderRepositoryInMemory) Place(_ context.Context, order domain.Order) error {
	r.catalog.mu.Lock()
	defer r.catalog.mu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrAlreadyExists
	}

	skus, demand := domain.StockDemand(order.Items)
	if err := r.catalog.decrementLocked(skus, demand); err != nil {
		return err
	}

	r.items[order.ID] = cloneOrder(order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByUser возвращает заказы пользователя, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	return r.collect(func(o domain.Order) bool { return o.UserID == userID }, limit), nil
}

// List возвращает заказы по фильтру от новых к старым.
func (r *orderRepositoryInMemory) List(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	return r.collect(filter.Matches, filter.Limit), nil
}

func (r *orderRepositoryInMemory) collect(match func(domain.Order) bool, limit int) []domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.items {
		if match(order) {
			result = append(result, cloneOrder(order))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// UpdateStatus меняет статус, если версия совпадает (optimistic locking).
// Позиции и сумма заказа не трогаются.
func (r *orderRepositoryInMemory) UpdateStatus(_ context.Context, id string, expectedVersion int64, status domain.OrderStatus, at time.Time) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if current.Version != expectedVersion {
		return domain.Order{}, domain.ErrOrderVersionConflict
	}

	current.Status = status
	current.UpdatedAt = at.UTC()
	current.Version++
	r.items[id] = current
	return cloneOrder(current), nil
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = make([]domain.LineItem, len(src.Items))
	for i, item := range src.Items {
		item.Attributes = domain.CloneAttributes(item.Attributes)
		dst.Items[i] = item
	}
	return dst
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
