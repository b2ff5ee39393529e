package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentifier возвращается, если строковый идентификатор не является UUID.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrItemsRequired — в заказе нет ни одной позиции.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// ErrInvalidQuantity — количество в позиции <= 0.
	ErrInvalidQuantity = errors.New("item quantity must be greater than zero")
	// ErrSKURequired — позиция без SKU.
	ErrSKURequired = errors.New("item sku is required")
	// ErrInvalidOrderStatus — неизвестный статус заказа.
	ErrInvalidOrderStatus = errors.New("invalid order status")
	// ErrInvalidPaymentMethod — неизвестный способ оплаты.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	// ErrInvalidStatusTransition — переход статуса запрещён state machine.
	ErrInvalidStatusTransition = errors.New("order status transition is not allowed")
	// ErrAmountMismatch — сумма заказа не совпадает с суммой позиций.
	ErrAmountMismatch = errors.New("order total does not match items sum")
	// ErrInvalidPrice — отрицательная цена.
	ErrInvalidPrice = errors.New("price must be non-negative")
	// ErrInvalidStock — отрицательный остаток.
	ErrInvalidStock = errors.New("stock must be non-negative")
	// ErrInvalidCategory — неизвестная категория товара.
	ErrInvalidCategory = errors.New("invalid product category")
	// ErrNameRequired — у сущности не заполнено имя.
	ErrNameRequired = errors.New("name is required")
	// ErrEmailRequired — у пользователя нет email.
	ErrEmailRequired = errors.New("email is required")
	// ErrInvalidStockAdjustment — корректировка остатка на ноль единиц.
	ErrInvalidStockAdjustment = errors.New("stock adjustment must be non-zero")
	// ErrInvalidFilter — некорректные параметры выборки.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrInvalidDiscount — промоакция с некорректным значением скидки или периодом.
	ErrInvalidDiscount = errors.New("invalid discount")

	// ErrInsufficientStock — на складе меньше единиц, чем запрошено.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrUserNotFound — пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrProductNotFound — товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrVariationNotFound — вариация с таким SKU не найдена.
	ErrVariationNotFound = errors.New("variation not found")
	// ErrProductIntegrity — вариация ссылается на несуществующий товар.
	ErrProductIntegrity = errors.New("variation references a missing product")
	// ErrPromotionNotFound — промоакция не найдена.
	ErrPromotionNotFound = errors.New("promotion not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")

	// ErrDuplicateSKU — SKU уже занят другой вариацией.
	ErrDuplicateSKU = errors.New("sku already exists")
	// ErrAlreadyExists — запись с таким ID уже существует.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// InsufficientStockError содержит детали нехватки остатка по конкретному SKU.
type InsufficientStockError struct {
	SKU       string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for sku %s: available %d, requested %d", e.SKU, e.Available, e.Requested)
}

// Unwrap позволяет сравнивать ошибку через errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// IsNotFound проверяет, относится ли ошибка к классу "не найдено".
func IsNotFound(err error) bool {
	for _, target := range []error{
		ErrUserNotFound,
		ErrProductNotFound,
		ErrVariationNotFound,
		ErrProductIntegrity,
		ErrPromotionNotFound,
		ErrOrderNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsValidation проверяет, что ошибка вызвана некорректными входными данными.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidIdentifier,
		ErrItemsRequired,
		ErrInvalidQuantity,
		ErrSKURequired,
		ErrInvalidOrderStatus,
		ErrInvalidPaymentMethod,
		ErrInvalidPrice,
		ErrInvalidStock,
		ErrInvalidCategory,
		ErrNameRequired,
		ErrEmailRequired,
		ErrInvalidStockAdjustment,
		ErrInvalidFilter,
		ErrInvalidDiscount,
		ErrAmountMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
