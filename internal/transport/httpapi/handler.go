package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/ordering"
)

const (
	maxBodyBytes          = 1 << 20
	defaultIdempotencyTTL = 24 * time.Hour
)

// OrderService — операции с заказами, которые нужны HTTP слою.
type OrderService interface {
	CreateOrder(ctx context.Context, in ordering.CreateOrderInput) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
	ListUserOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, in ordering.UpdateStatusInput) (domain.Order, error)
}

// CatalogService — операции с пользователями, товарами и акциями.
type CatalogService interface {
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
	CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, id string, product domain.Product) (domain.Product, error)
	CreateVariation(ctx context.Context, variation domain.Variation) (domain.Variation, error)
	GetVariation(ctx context.Context, sku string) (domain.Variation, error)
	AdjustStock(ctx context.Context, sku string, delta int) (domain.Variation, error)
	ListVariations(ctx context.Context, productID string) ([]domain.Variation, error)
	CreatePromotion(ctx context.Context, promotion domain.Promotion) (domain.Promotion, error)
	GetPromotion(ctx context.Context, id string) (domain.Promotion, error)
	ActivePromotions(ctx context.Context, productID string) ([]domain.Promotion, error)
	ListPromotions(ctx context.Context, filter domain.PromotionFilter) ([]domain.Promotion, error)
}

// Option настраивает Handler.
type Option func(*Handler)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithMetrics включает метрики запросов.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithIdempotency включает обработку Idempotency-Key для POST /orders.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) Option {
	return func(h *Handler) {
		h.idempotency = repo
		if ttl > 0 {
			h.idempotencyTTL = ttl
		}
	}
}

// Handler обслуживает REST API магазина.
type Handler struct {
	orders         OrderService
	catalog        CatalogService
	idempotency    domain.IdempotencyRepository
	idempotencyTTL time.Duration
	metrics        *metrics.HTTPMetrics
	logger         *log.Entry
	now            func() time.Time
}

// NewHandler создаёт HTTP обработчик.
func NewHandler(orders OrderService, catalog CatalogService, options ...Option) *Handler {
	h := &Handler{
		orders:         orders,
		catalog:        catalog,
		idempotencyTTL: defaultIdempotencyTTL,
		logger:         log.NewEntry(log.StandardLogger()).WithField("component", "http-api"),
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range options {
		opt(h)
	}
	return h
}

// RegisterRoutes регистрирует маршруты API в mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /orders", h.withIdempotency(http.HandlerFunc(h.createOrder)))
	mux.HandleFunc("GET /orders", h.listOrders)
	mux.HandleFunc("GET /orders/{id}", h.getOrder)
	mux.HandleFunc("PATCH /orders/{id}/status", h.updateOrderStatus)
	mux.HandleFunc("GET /users/{id}/orders", h.listUserOrders)

	mux.HandleFunc("POST /users", h.createUser)
	mux.HandleFunc("GET /users/{id}", h.getUser)

	mux.HandleFunc("POST /products", h.createProduct)
	mux.HandleFunc("GET /products", h.listProducts)
	mux.HandleFunc("GET /products/{id}", h.getProduct)
	mux.HandleFunc("PUT /products/{id}", h.updateProduct)
	mux.HandleFunc("GET /products/{id}/variations", h.listVariations)
	mux.HandleFunc("GET /products/{id}/promotions", h.activePromotions)

	mux.HandleFunc("POST /variations", h.createVariation)
	mux.HandleFunc("GET /variations/{sku}", h.getVariation)
	mux.HandleFunc("PATCH /variations/{sku}/stock", h.adjustStock)

	mux.HandleFunc("POST /promotions", h.createPromotion)
	mux.HandleFunc("GET /promotions", h.listPromotions)
	mux.HandleFunc("GET /promotions/{id}", h.getPromotion)
}

// Routes возвращает mux с маршрутами API, обёрнутый в middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h.instrument(mux)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), ordering.CreateOrderInput{
		UserID:        req.UserID,
		Status:        domain.OrderStatus(req.Status),
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		Items:         req.items(),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderResponse(order, nil))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	timeline, err := h.orders.Timeline(r.Context(), order.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(order, timeline))
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), ordering.UpdateStatusInput{
		OrderID:         r.PathValue("id"),
		Status:          domain.OrderStatus(req.Status),
		ExpectedVersion: req.ExpectedVersion,
		Reason:          req.Reason,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(order, nil))
}

func (h *Handler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	orders, err := h.orders.ListUserOrders(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeOrders(w, orders)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.OrderFilter{
		Status:        domain.OrderStatus(q.Get("status")),
		PaymentMethod: domain.PaymentMethod(q.Get("payment_method")),
	}
	var err error
	if filter.From, err = queryTime(q.Get("from"), "from"); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if filter.To, err = queryTime(q.Get("to"), "to"); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if filter.Limit, err = queryLimit(r); err != nil {
		writeError(w, h.logger, err)
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeOrders(w, orders)
}

func writeOrders(w http.ResponseWriter, orders []domain.Order) {
	resp := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		resp = append(resp, newOrderResponse(order, nil))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.catalog.CreateUser(r.Context(), req.toDomain())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(user))
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.catalog.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	product, err := h.catalog.CreateProduct(r.Context(), req.toDomain())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newProductResponse(product))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductResponse(product))
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ProductFilter{
		Name:     q.Get("name"),
		Category: domain.Category(q.Get("category")),
	}
	var err error
	if filter.MinPrice, err = queryDecimal(q.Get("min_price"), "min_price"); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if filter.MaxPrice, err = queryDecimal(q.Get("max_price"), "max_price"); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if filter.Limit, err = queryLimit(r); err != nil {
		writeError(w, h.logger, err)
		return
	}

	products, err := h.catalog.ListProducts(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, newProductResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	product, err := h.catalog.UpdateProduct(r.Context(), r.PathValue("id"), req.toDomain())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductResponse(product))
}

func (h *Handler) listVariations(w http.ResponseWriter, r *http.Request) {
	variations, err := h.catalog.ListVariations(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := make([]variationResponse, 0, len(variations))
	for _, v := range variations {
		resp = append(resp, newVariationResponse(v))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) activePromotions(w http.ResponseWriter, r *http.Request) {
	promotions, err := h.catalog.ActivePromotions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := make([]promotionResponse, 0, len(promotions))
	for _, p := range promotions {
		resp = append(resp, newPromotionResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createVariation(w http.ResponseWriter, r *http.Request) {
	var req createVariationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	variation, err := h.catalog.CreateVariation(r.Context(), req.toDomain())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newVariationResponse(variation))
}

func (h *Handler) getVariation(w http.ResponseWriter, r *http.Request) {
	variation, err := h.catalog.GetVariation(r.Context(), r.PathValue("sku"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newVariationResponse(variation))
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	variation, err := h.catalog.AdjustStock(r.Context(), r.PathValue("sku"), req.Delta)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newVariationResponse(variation))
}

func (h *Handler) createPromotion(w http.ResponseWriter, r *http.Request) {
	var req createPromotionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	promotion, err := h.catalog.CreatePromotion(r.Context(), req.toDomain())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPromotionResponse(promotion))
}

func (h *Handler) getPromotion(w http.ResponseWriter, r *http.Request) {
	promotion, err := h.catalog.GetPromotion(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newPromotionResponse(promotion))
}

func (h *Handler) listPromotions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	promotions, err := h.catalog.ListPromotions(r.Context(), domain.PromotionFilter{
		Kind:  domain.DiscountKind(q.Get("kind")),
		State: domain.PromotionState(q.Get("state")),
		Limit: limit,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := make([]promotionResponse, 0, len(promotions))
	for _, p := range promotions {
		resp = append(resp, newPromotionResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", errInvalidQuery)
	}
	return n, nil
}

// queryTime разбирает RFC 3339; пустое значение — нулевое время, граница не задана.
func queryTime(raw, name string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be an RFC 3339 timestamp", errInvalidQuery, name)
	}
	return t.UTC(), nil
}

func queryDecimal(raw, name string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a decimal number", errInvalidQuery, name)
	}
	return &d, nil
}
