package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/ordering"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

func TestIdempotentCreateOrderReplaysResponse(t *testing.T) {
	f := newAPIFixture(t)
	userID, _ := f.seed(t, 5)
	body := mustJSON(t, orderBody(userID, 2))
	headers := map[string]string{HeaderIdempotencyKey: "order-1"}

	first := f.do(t, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusCreated, first.StatusCode)
	firstBody, err := io.ReadAll(first.Body)
	require.NoError(t, err)
	assert.Empty(t, first.Header.Get(HeaderIdempotentReplayed))

	second := f.do(t, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusCreated, second.StatusCode)
	secondBody, err := io.ReadAll(second.Body)
	require.NoError(t, err)
	assert.Equal(t, "true", second.Header.Get(HeaderIdempotentReplayed))
	assert.JSONEq(t, string(firstBody), string(secondBody))

	assert.Equal(t, 3, f.stock(t), "replay must not place a second order")

	record, err := f.idempotency.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, record.Status)
	assert.Equal(t, http.StatusCreated, record.HTTPStatus)
}

func TestIdempotencyKeyReusedWithDifferentBody(t *testing.T) {
	f := newAPIFixture(t)
	userID, _ := f.seed(t, 5)
	headers := map[string]string{HeaderIdempotencyKey: "order-2"}

	resp := f.do(t, http.MethodPost, "/orders", orderBody(userID, 1), headers)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/orders", orderBody(userID, 2), headers)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, CodeConflict, decodeBody[errorResponse](t, resp).Error)
	assert.Equal(t, 4, f.stock(t))
}

func TestIdempotencyKeyStillProcessing(t *testing.T) {
	f := newAPIFixture(t)
	userID, _ := f.seed(t, 5)
	body := mustJSON(t, orderBody(userID, 1))

	_, err := f.idempotency.CreateProcessing(context.Background(), "order-3",
		requestHash(http.MethodPost, "/orders", []byte(body)), time.Now().Add(time.Hour))
	require.NoError(t, err)

	resp := f.do(t, http.MethodPost, "/orders", body, map[string]string{HeaderIdempotencyKey: "order-3"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, decodeBody[errorResponse](t, resp).Message, "already processing")
	assert.Equal(t, 5, f.stock(t))
}

func TestIdempotencyReplaysFailedResponse(t *testing.T) {
	f := newAPIFixture(t)
	userID, _ := f.seed(t, 5)
	body := mustJSON(t, orderBody(userID, 6))
	headers := map[string]string{HeaderIdempotencyKey: "order-4"}

	resp := f.do(t, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	record, err := f.idempotency.Get(context.Background(), "order-4")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusFailed, record.Status)

	resp = f.do(t, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get(HeaderIdempotentReplayed))
	assert.Equal(t, CodeInsufficientStock, decodeBody[errorResponse](t, resp).Error)
}

func TestRequestWithoutKeyIsNotRecorded(t *testing.T) {
	f := newAPIFixture(t)
	userID, _ := f.seed(t, 5)

	resp := f.do(t, http.MethodPost, "/orders", orderBody(userID, 1), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	removed, err := f.idempotency.DeleteExpired(context.Background(), time.Now().Add(48*time.Hour), 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRequestHashDependsOnAllParts(t *testing.T) {
	base := requestHash(http.MethodPost, "/orders", []byte(`{}`))

	assert.Equal(t, base, requestHash(http.MethodPost, "/orders", []byte(`{}`)))
	assert.NotEqual(t, base, requestHash(http.MethodPut, "/orders", []byte(`{}`)))
	assert.NotEqual(t, base, requestHash(http.MethodPost, "/order", []byte(`{}`)))
	assert.NotEqual(t, base, requestHash(http.MethodPost, "/orders", []byte(`{ }`)))
}

// ctxIdempotency ведёт себя как сетевые хранилища: отменённый контекст — ошибка.
type ctxIdempotency struct {
	domain.IdempotencyRepository
}

func (r ctxIdempotency) MarkDone(ctx context.Context, key string, body []byte, status int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.IdempotencyRepository.MarkDone(ctx, key, body, status)
}

func (r ctxIdempotency) MarkFailed(ctx context.Context, key string, body []byte, status int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.IdempotencyRepository.MarkFailed(ctx, key, body, status)
}

// stubOrders подменяет только CreateOrder, остальные методы не вызываются.
type stubOrders struct {
	OrderService
	create func(ctx context.Context, in ordering.CreateOrderInput) (domain.Order, error)
}

func (s stubOrders) CreateOrder(ctx context.Context, in ordering.CreateOrderInput) (domain.Order, error) {
	return s.create(ctx, in)
}

func postOrder(t *testing.T, handler http.Handler, ctx context.Context, body, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)).WithContext(ctx)
	req.Header.Set(HeaderIdempotencyKey, key)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIdempotentResponseStoredAfterClientDisconnect(t *testing.T) {
	repo := ctxIdempotency{memory.NewIdempotencyRepository()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var placed atomic.Int32
	orders := stubOrders{create: func(_ context.Context, in ordering.CreateOrderInput) (domain.Order, error) {
		placed.Add(1)
		// Клиент ушёл сразу после коммита заказа.
		cancel()
		return domain.Order{
			ID:            domain.NewID(),
			UserID:        in.UserID,
			Status:        domain.OrderStatusPending,
			PaymentMethod: in.PaymentMethod,
			Total:         decimal.NewFromInt(110),
		}, nil
	}}
	h := NewHandler(orders, nil,
		WithLogger(log.New().WithField("component", "http-test")),
		WithIdempotency(repo, time.Hour),
	)
	routes := h.Routes()
	body := mustJSON(t, orderBody(domain.NewID(), 1))

	first := postOrder(t, routes, ctx, body, "order-5")
	require.Equal(t, http.StatusCreated, first.Code)

	record, err := repo.Get(context.Background(), "order-5")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, record.Status)

	retry := postOrder(t, routes, context.Background(), body, "order-5")
	require.Equal(t, http.StatusCreated, retry.Code)
	assert.Equal(t, "true", retry.Header().Get(HeaderIdempotentReplayed))
	assert.JSONEq(t, first.Body.String(), retry.Body.String())
	assert.Equal(t, int32(1), placed.Load())
}

func TestIdempotencyKeyReleasedAfterPanic(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	var calls atomic.Int32
	orders := stubOrders{create: func(context.Context, ordering.CreateOrderInput) (domain.Order, error) {
		calls.Add(1)
		panic("boom")
	}}
	h := NewHandler(orders, nil,
		WithLogger(log.New().WithField("component", "http-test")),
		WithIdempotency(repo, time.Hour),
	)
	routes := h.Routes()
	body := mustJSON(t, orderBody(domain.NewID(), 1))

	first := postOrder(t, routes, context.Background(), body, "order-6")
	require.Equal(t, http.StatusInternalServerError, first.Code)

	record, err := repo.Get(context.Background(), "order-6")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusFailed, record.Status)
	assert.Equal(t, http.StatusInternalServerError, record.HTTPStatus)

	retry := postOrder(t, routes, context.Background(), body, "order-6")
	require.Equal(t, http.StatusInternalServerError, retry.Code)
	assert.Equal(t, "true", retry.Header().Get(HeaderIdempotentReplayed))
	assert.Equal(t, CodeInternal, decodeRecorder[errorResponse](t, retry).Error)
	assert.Equal(t, int32(1), calls.Load())
}

func decodeRecorder[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
