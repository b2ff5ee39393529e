package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	// HeaderIdempotencyKey — ключ идемпотентности от клиента.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplayed выставляется, если ответ взят из сохранённого.
	HeaderIdempotentReplayed = "Idempotent-Replayed"
)

// requestHash связывает ключ с конкретным запросом: метод, путь и тело.
func requestHash(method, path string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(method))
	sum.Write([]byte{0})
	sum.Write([]byte(path))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

// withIdempotency сохраняет ответ по Idempotency-Key и повторяет его на дубликатах.
// Без заголовка или без хранилища запрос проходит как есть.
func (h *Handler) withIdempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
		if key == "" || h.idempotency == nil {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, h.logger, fmt.Errorf("%w: %v", errInvalidBody, err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		ctx := r.Context()
		logger := h.logger.WithField("idempotency_key", key)
		existing, err := h.idempotency.CreateProcessing(ctx, key, requestHash(r.Method, r.URL.Path, body), h.now().Add(h.idempotencyTTL))
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
			h.replay(w, existing)
			return
		case errors.Is(err, domain.ErrIdempotencyHashMismatch):
			writeError(w, h.logger, err)
			return
		default:
			writeError(w, h.logger, fmt.Errorf("reserve idempotency key: %w", err))
			return
		}

		rec := newResponseRecorder(w, true)
		// Ответ фиксируется и после отключения клиента: заказ уже мог быть сохранён.
		storeCtx := context.WithoutCancel(ctx)
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			// Паника: ключ закрывается как failed, 500 клиенту пишет instrument.
			body, _ := json.Marshal(errorResponse{Error: CodeInternal, Message: "internal error"})
			h.storeResponse(storeCtx, logger, key, body, http.StatusInternalServerError)
			panic(p)
		}()

		next.ServeHTTP(rec, r)
		h.storeResponse(storeCtx, logger, key, rec.body.Bytes(), rec.status)
	})
}

// storeResponse сохраняет итог запроса по ключу. Ответ клиенту уже отправлен,
// поэтому ошибку сохранения только логируем.
func (h *Handler) storeResponse(ctx context.Context, logger *log.Entry, key string, body []byte, status int) {
	mark := h.idempotency.MarkDone
	if status < 200 || status >= 300 {
		mark = h.idempotency.MarkFailed
	}
	if err := mark(ctx, key, body, status); err != nil {
		logger.WithError(err).Warn("failed to store idempotent response")
	}
}

func (h *Handler) replay(w http.ResponseWriter, record domain.IdempotencyRecord) {
	if record.Status == domain.IdempotencyStatusProcessing || record.HTTPStatus == 0 {
		writeError(w, h.logger, errAlreadyProcessing)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderIdempotentReplayed, "true")
	w.WriteHeader(record.HTTPStatus)
	_, _ = w.Write(record.ResponseBody)
}
