package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category описывает категорию товара в каталоге.
type Category string

const (
	CategoryApparel     Category = "apparel"
	CategoryDecor       Category = "decor"
	CategoryElectronics Category = "electronics"
	CategoryToys        Category = "toys"
)

// Valid проверяет, что категория из поддерживаемого списка.
func (c Category) Valid() bool {
	switch c {
	case CategoryApparel, CategoryDecor, CategoryElectronics, CategoryToys:
		return true
	default:
		return false
	}
}

// Product — товар каталога. Цена вариации считается от BasePrice.
type Product struct {
	ID           string
	Name         string
	Description  string
	BasePrice    decimal.Decimal
	Category     Category
	Brand        string
	RegisteredAt time.Time
}

// Variation — покупаемая конфигурация товара (размер, цвет и т.п.) со своим остатком.
// ProductID — ссылка, а не владение: жизненным циклом товара вариация не управляет.
type Variation struct {
	ID         string
	ProductID  string
	SKU        string
	Attributes map[string]string
	PriceDelta decimal.Decimal
	Stock      int
	ImageURLs  []string
}

// NormalizeProduct применяет значения по умолчанию для необязательных полей.
func NormalizeProduct(p Product, now time.Time) Product {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.Brand = strings.TrimSpace(p.Brand)
	p.Category = Category(strings.ToLower(strings.TrimSpace(string(p.Category))))
	if p.RegisteredAt.IsZero() {
		p.RegisteredAt = now
	}
	p.RegisteredAt = p.RegisteredAt.UTC()
	return p
}

// Validate проверяет инварианты товара.
func (p *Product) Validate() []error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, ErrNameRequired)
	}
	if p.BasePrice.IsNegative() {
		errs = append(errs, ErrInvalidPrice)
	}
	if !HasMoneyScale(p.BasePrice) {
		errs = append(errs, fmt.Errorf("%w: base price must have at most 2 decimal places", ErrInvalidPrice))
	}
	if !p.Category.Valid() {
		errs = append(errs, ErrInvalidCategory)
	}

	return errs
}

// NormalizeVariation приводит необязательные поля к пустым, но не-nil значениям.
func NormalizeVariation(v Variation) Variation {
	v.SKU = strings.TrimSpace(v.SKU)
	if v.Attributes == nil {
		v.Attributes = map[string]string{}
	}
	if v.ImageURLs == nil {
		v.ImageURLs = []string{}
	}
	return v
}

// Validate проверяет инварианты вариации. Цена итоговая (BasePrice+PriceDelta)
// проверяется при расчёте, здесь только собственные поля.
func (v *Variation) Validate() []error {
	var errs []error

	if v.SKU == "" {
		errs = append(errs, ErrSKURequired)
	}
	if v.Stock < 0 {
		errs = append(errs, ErrInvalidStock)
	}
	if !HasMoneyScale(v.PriceDelta) {
		errs = append(errs, fmt.Errorf("%w: price delta must have at most 2 decimal places", ErrInvalidPrice))
	}

	return errs
}

// CloneAttributes возвращает копию атрибутов, чтобы снимок позиции не делил map с вариацией.
func CloneAttributes(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
