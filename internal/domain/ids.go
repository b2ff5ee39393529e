package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewID генерирует новый идентификатор сущности.
func NewID() string {
	return uuid.NewString()
}

// ParseID нормализует строковый идентификатор и проверяет, что это UUID.
// Поле field попадает в текст ошибки, чтобы клиент видел, какое значение некорректно.
func ParseID(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s %q", ErrInvalidIdentifier, field, raw)
	}
	return id.String(), nil
}
