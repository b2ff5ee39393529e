package domain

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProductFilter — условия выборки товаров. Пустые поля не фильтруют.
type ProductFilter struct {
	// Name ищется как подстрока без учёта регистра.
	Name     string
	Category Category
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Limit    int
}

// Matches проверяет товар на соответствие фильтру.
func (f ProductFilter) Matches(p Product) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Name)) {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.MinPrice != nil && p.BasePrice.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.BasePrice.GreaterThan(*f.MaxPrice) {
		return false
	}
	return true
}

// PromotionState — положение акции относительно момента выборки.
type PromotionState string

const (
	PromotionActive   PromotionState = "active"
	PromotionUpcoming PromotionState = "upcoming"
	PromotionExpired  PromotionState = "expired"
)

// Valid проверяет, что состояние известно.
func (s PromotionState) Valid() bool {
	switch s {
	case PromotionActive, PromotionUpcoming, PromotionExpired:
		return true
	default:
		return false
	}
}

// PromotionFilter — условия выборки акций. State сравнивается с моментом At.
type PromotionFilter struct {
	Kind  DiscountKind
	State PromotionState
	At    time.Time
	Limit int
}

// Matches проверяет акцию на соответствие фильтру.
func (f PromotionFilter) Matches(p Promotion) bool {
	if f.Kind != "" && p.Kind != f.Kind {
		return false
	}
	switch f.State {
	case PromotionActive:
		return p.ActiveAt(f.At)
	case PromotionUpcoming:
		return p.StartsAt.After(f.At)
	case PromotionExpired:
		return p.EndsAt.Before(f.At)
	}
	return true
}

// OrderFilter — условия выборки заказов, границы периода включительные.
type OrderFilter struct {
	Status        OrderStatus
	PaymentMethod PaymentMethod
	From          time.Time
	To            time.Time
	Limit         int
}

// Matches проверяет заказ на соответствие фильтру.
func (f OrderFilter) Matches(o Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.PaymentMethod != "" && o.PaymentMethod != f.PaymentMethod {
		return false
	}
	if !f.From.IsZero() && o.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && o.CreatedAt.After(f.To) {
		return false
	}
	return true
}

// UserRepository описывает хранилище пользователей.
type UserRepository interface {
	Create(ctx context.Context, user User) error
	Get(ctx context.Context, id string) (User, error)
	// Exists дешевле Get: нужен только факт наличия пользователя.
	Exists(ctx context.Context, id string) (bool, error)
}

// CatalogRepository хранит товары и их вариации.
type CatalogRepository interface {
	CreateProduct(ctx context.Context, product Product) error
	// GetProduct возвращает ErrProductNotFound, если товара нет.
	GetProduct(ctx context.Context, id string) (Product, error)
	// ListProducts возвращает товары по фильтру, упорядоченные по имени.
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	// UpdateProduct перезаписывает поля товара, ErrProductNotFound если его нет.
	// Позиции оформленных заказов не меняются: это снимки.
	UpdateProduct(ctx context.Context, product Product) error
	// CreateVariation возвращает ErrProductNotFound для несуществующего товара
	// и ErrDuplicateSKU, если SKU уже занят.
	CreateVariation(ctx context.Context, variation Variation) error
	// GetVariationBySKU возвращает ErrVariationNotFound, если SKU нет.
	GetVariationBySKU(ctx context.Context, sku string) (Variation, error)
	ListVariationsByProduct(ctx context.Context, productID string) ([]Variation, error)
	// AdjustStock атомарно прибавляет delta к остатку (отрицательная delta списывает).
	// Если остаток ушёл бы в минус, ничего не меняется и возвращается *InsufficientStockError.
	AdjustStock(ctx context.Context, sku string, delta int) (Variation, error)
}

// PromotionRepository хранит промоакции.
type PromotionRepository interface {
	Create(ctx context.Context, promotion Promotion) error
	Get(ctx context.Context, id string) (Promotion, error)
	// ListActiveForProduct возвращает акции, у которых StartsAt <= now <= EndsAt
	// и productID входит в список применимых.
	ListActiveForProduct(ctx context.Context, productID string, now time.Time) ([]Promotion, error)
	// List возвращает акции по фильтру в порядке начала.
	List(ctx context.Context, filter PromotionFilter) ([]Promotion, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Place атомарно сохраняет заказ и списывает остатки по всем позициям.
	// Если хотя бы одно списание невозможно, ничего не изменяется и
	// возвращается *InsufficientStockError.
	Place(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы пользователя от новых к старым, limit <= 0 снимает ограничение.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// List возвращает заказы по фильтру от новых к старым.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	// UpdateStatus меняет только статус с учётом optimistic locking по Version.
	UpdateStatus(ctx context.Context, id string, expectedVersion int64, status OrderStatus, at time.Time) (Order, error)
}
