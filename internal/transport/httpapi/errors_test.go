package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid id", fmt.Errorf("user_id: %w", domain.ErrInvalidIdentifier), http.StatusBadRequest, CodeInvalidIdentifier},
		{"invalid discount", domain.ErrInvalidDiscount, http.StatusBadRequest, CodeInvalidDiscount},
		{"insufficient stock", &domain.InsufficientStockError{SKU: "V1", Available: 1, Requested: 2}, http.StatusBadRequest, CodeInsufficientStock},
		{"joined validation", errors.Join(domain.ErrNameRequired, domain.ErrInvalidPrice), http.StatusBadRequest, CodeValidationFailed},
		{"bad body", errInvalidBody, http.StatusBadRequest, CodeValidationFailed},
		{"user not found", domain.ErrUserNotFound, http.StatusNotFound, CodeNotFound},
		{"dangling product", domain.ErrProductIntegrity, http.StatusNotFound, CodeNotFound},
		{"duplicate sku", domain.ErrDuplicateSKU, http.StatusConflict, CodeConflict},
		{"transition", domain.ErrInvalidStatusTransition, http.StatusConflict, CodeConflict},
		{"version", domain.ErrOrderVersionConflict, http.StatusConflict, CodeConflict},
		{"idempotency mismatch", domain.ErrIdempotencyHashMismatch, http.StatusConflict, CodeConflict},
		{"processing", errAlreadyProcessing, http.StatusConflict, CodeConflict},
		{"unknown", errors.New("db is on fire"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, code := classify(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantCode, code)
		})
	}
}
