package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Коды ошибок в теле ответа.
const (
	CodeInvalidIdentifier = "InvalidIdentifier"
	CodeInvalidDiscount   = "InvalidDiscount"
	CodeInsufficientStock = "InsufficientStock"
	CodeValidationFailed  = "ValidationFailed"
	CodeNotFound          = "NotFound"
	CodeConflict          = "Conflict"
	CodeInternal          = "Internal"
)

var (
	errInvalidBody       = errors.New("invalid request body")
	errInvalidQuery      = errors.New("invalid query parameter")
	errAlreadyProcessing = errors.New("request with this idempotency key is already processing")
)

// classify сопоставляет доменную ошибку HTTP статусу и коду ответа.
// Порядок важен: ErrInvalidIdentifier тоже валидационная ошибка.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidIdentifier):
		return http.StatusBadRequest, CodeInvalidIdentifier
	case errors.Is(err, domain.ErrInvalidDiscount):
		return http.StatusBadRequest, CodeInvalidDiscount
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusBadRequest, CodeInsufficientStock
	case domain.IsValidation(err), errors.Is(err, errInvalidBody), errors.Is(err, errInvalidQuery):
		return http.StatusBadRequest, CodeValidationFailed
	case domain.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrDuplicateSKU),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrInvalidStatusTransition),
		domain.IsVersionConflict(err),
		domain.IsIdempotencyConflict(err),
		errors.Is(err, errAlreadyProcessing):
		return http.StatusConflict, CodeConflict
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// writeError пишет тело {"error","message"}. Текст внутренних ошибок наружу не отдаётся.
func writeError(w http.ResponseWriter, logger *log.Entry, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.WithError(err).Error("request failed")
		}
		message = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
