package httpapi

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/pricing"
)

// money сериализует сумму JSON-числом с двумя знаками: 110.00.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

type addressDTO struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

type createUserRequest struct {
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	ShippingAddress addressDTO `json:"shipping_address"`
}

type userResponse struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone,omitempty"`
	ShippingAddress addressDTO `json:"shipping_address"`
	RegisteredAt    time.Time  `json:"registered_at"`
}

func (r createUserRequest) toDomain() domain.User {
	return domain.User{
		Name:            r.Name,
		Email:           r.Email,
		Phone:           r.Phone,
		ShippingAddress: domain.Address(r.ShippingAddress),
	}
}

func newUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		Phone:           u.Phone,
		ShippingAddress: addressDTO(u.ShippingAddress),
		RegisteredAt:    u.RegisteredAt,
	}
}

type createProductRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	BasePrice    decimal.Decimal `json:"base_price"`
	Category     string          `json:"category"`
	Brand        string          `json:"brand"`
	RegisteredAt *time.Time      `json:"registered_at,omitempty"`
}

// updateProductRequest — редактируемые поля товара, дата регистрации неизменна.
type updateProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	BasePrice   decimal.Decimal `json:"base_price"`
	Category    string          `json:"category"`
	Brand       string          `json:"brand"`
}

func (r updateProductRequest) toDomain() domain.Product {
	return domain.Product{
		Name:        r.Name,
		Description: r.Description,
		BasePrice:   r.BasePrice,
		Category:    domain.Category(r.Category),
		Brand:       r.Brand,
	}
}

// adjustStockRequest — приращение остатка, отрицательное значение списывает.
type adjustStockRequest struct {
	Delta int `json:"delta"`
}

type productResponse struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	BasePrice    json.Number `json:"base_price"`
	Category     string      `json:"category"`
	Brand        string      `json:"brand,omitempty"`
	RegisteredAt time.Time   `json:"registered_at"`
}

func (r createProductRequest) toDomain() domain.Product {
	p := domain.Product{
		Name:        r.Name,
		Description: r.Description,
		BasePrice:   r.BasePrice,
		Category:    domain.Category(r.Category),
		Brand:       r.Brand,
	}
	if r.RegisteredAt != nil {
		p.RegisteredAt = *r.RegisteredAt
	}
	return p
}

func newProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		BasePrice:    money(p.BasePrice),
		Category:     string(p.Category),
		Brand:        p.Brand,
		RegisteredAt: p.RegisteredAt,
	}
}

type createVariationRequest struct {
	ProductID  string            `json:"product_id"`
	SKU        string            `json:"sku"`
	Attributes map[string]string `json:"attributes"`
	PriceDelta decimal.Decimal   `json:"price_delta"`
	Stock      int               `json:"stock"`
	ImageURLs  []string          `json:"image_urls"`
}

type variationResponse struct {
	ID         string            `json:"id"`
	ProductID  string            `json:"product_id"`
	SKU        string            `json:"sku"`
	Attributes map[string]string `json:"attributes"`
	PriceDelta json.Number       `json:"price_delta"`
	Stock      int               `json:"stock"`
	ImageURLs  []string          `json:"image_urls"`
}

func (r createVariationRequest) toDomain() domain.Variation {
	return domain.Variation{
		ProductID:  r.ProductID,
		SKU:        r.SKU,
		Attributes: r.Attributes,
		PriceDelta: r.PriceDelta,
		Stock:      r.Stock,
		ImageURLs:  r.ImageURLs,
	}
}

func newVariationResponse(v domain.Variation) variationResponse {
	return variationResponse{
		ID:         v.ID,
		ProductID:  v.ProductID,
		SKU:        v.SKU,
		Attributes: v.Attributes,
		PriceDelta: money(v.PriceDelta),
		Stock:      v.Stock,
		ImageURLs:  v.ImageURLs,
	}
}

type createPromotionRequest struct {
	Name                 string          `json:"name"`
	StartsAt             time.Time       `json:"starts_at"`
	EndsAt               time.Time       `json:"ends_at"`
	DiscountKind         string          `json:"discount_kind"`
	Value                decimal.Decimal `json:"value"`
	ApplicableProductIDs []string        `json:"applicable_product_ids"`
}

type promotionResponse struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	StartsAt             time.Time   `json:"starts_at"`
	EndsAt               time.Time   `json:"ends_at"`
	DiscountKind         string      `json:"discount_kind"`
	Value                json.Number `json:"value"`
	ApplicableProductIDs []string    `json:"applicable_product_ids"`
}

func (r createPromotionRequest) toDomain() domain.Promotion {
	return domain.Promotion{
		Name:                 r.Name,
		StartsAt:             r.StartsAt,
		EndsAt:               r.EndsAt,
		Kind:                 domain.DiscountKind(r.DiscountKind),
		Value:                r.Value,
		ApplicableProductIDs: r.ApplicableProductIDs,
	}
}

func newPromotionResponse(p domain.Promotion) promotionResponse {
	return promotionResponse{
		ID:                   p.ID,
		Name:                 p.Name,
		StartsAt:             p.StartsAt,
		EndsAt:               p.EndsAt,
		DiscountKind:         string(p.Kind),
		Value:                money(p.Value),
		ApplicableProductIDs: p.ApplicableProductIDs,
	}
}

type orderItemRequest struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type createOrderRequest struct {
	UserID        string             `json:"user_id"`
	Status        string             `json:"status,omitempty"`
	PaymentMethod string             `json:"payment_method"`
	Items         []orderItemRequest `json:"items"`
}

func (r createOrderRequest) items() []pricing.ItemRequest {
	items := make([]pricing.ItemRequest, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, pricing.ItemRequest{SKU: item.SKU, Quantity: item.Quantity})
	}
	return items
}

type updateStatusRequest struct {
	Status          string `json:"status"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

type lineItemResponse struct {
	ProductID   string            `json:"product_id"`
	ProductName string            `json:"product_name"`
	SKU         string            `json:"sku"`
	Attributes  map[string]string `json:"attributes"`
	Quantity    int               `json:"quantity"`
	UnitPrice   json.Number       `json:"unit_price"`
	PromotionID string            `json:"promotion_id,omitempty"`
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type orderResponse struct {
	ID            string                  `json:"id"`
	UserID        string                  `json:"user_id"`
	Status        string                  `json:"status"`
	PaymentMethod string                  `json:"payment_method"`
	Items         []lineItemResponse      `json:"items"`
	Total         json.Number             `json:"total"`
	Version       int64                   `json:"version"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	Timeline      []timelineEventResponse `json:"timeline,omitempty"`
}

func newOrderResponse(o domain.Order, timeline []domain.TimelineEvent) orderResponse {
	items := make([]lineItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, lineItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			SKU:         item.SKU,
			Attributes:  item.Attributes,
			Quantity:    item.Quantity,
			UnitPrice:   money(item.UnitPrice),
			PromotionID: item.PromotionID,
		})
	}
	resp := orderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		Items:         items,
		Total:         money(o.Total),
		Version:       o.Version,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, event := range timeline {
		resp.Timeline = append(resp.Timeline, timelineEventResponse{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	return resp
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
