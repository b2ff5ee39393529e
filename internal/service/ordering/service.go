package ordering

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/pricing"
	"github.com/vladislavdragonenkov/shop/internal/tracing"
)

const (
	statusUpdateMaxRetries = 3
	statusUpdateBaseDelay  = 10 * time.Millisecond
)

// Pricer считает позиции заказа.
type Pricer interface {
	PriceOrder(ctx context.Context, items []pricing.ItemRequest, now time.Time) (pricing.PricedOrder, error)
}

// CreateOrderInput — запрос на оформление заказа.
type CreateOrderInput struct {
	UserID string
	// Status — начальный статус, пустой означает pending.
	Status        domain.OrderStatus
	PaymentMethod domain.PaymentMethod
	Items         []pricing.ItemRequest
}

// UpdateStatusInput — запрос на смену статуса.
type UpdateStatusInput struct {
	OrderID string
	Status  domain.OrderStatus
	// ExpectedVersion задаётся клиентом для optimistic locking, при nil берётся текущая.
	ExpectedVersion *int64
	Reason          string
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) { s.logger = logger }
}

// WithTimeline включает запись событий в timeline заказа.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(s *Service) { s.timeline = timeline }
}

// WithOutbox включает публикацию событий заказа через outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) { s.outbox = outbox }
}

// WithMetrics задаёт метрики; без них сервис работает молча.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service оформляет заказы и ведёт их статусы.
type Service struct {
	users    domain.UserRepository
	orders   domain.OrderRepository
	pricer   Pricer
	timeline domain.TimelineRepository
	outbox   domain.OutboxRepository
	metrics  *metrics.OrderMetrics
	logger   *log.Entry
	now      func() time.Time
}

// NewService создаёт сервис заказов.
func NewService(users domain.UserRepository, orders domain.OrderRepository, pricer Pricer, options ...Option) *Service {
	s := &Service{
		users:  users,
		orders: orders,
		pricer: pricer,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "ordering")
	}
	return s
}

// CreateOrder проверяет пользователя, считает заказ и атомарно сохраняет его вместе со списанием остатков.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	ctx, span := tracing.Tracer().Start(ctx, "ordering.CreateOrder")
	defer span.End()

	started := time.Now()
	order, promotions, err := s.createOrder(ctx, in)
	if err != nil {
		tracing.RecordError(span, err)
		s.recordFailure(err)
		return domain.Order{}, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.String("order.total", order.Total.StringFixed(2)))

	if s.metrics != nil {
		s.metrics.RecordOrderCreated(len(order.Items), promotions, time.Since(started))
	}
	s.afterCommit(ctx, order, domain.TimelineOrderCreated, domain.EventOrderCreated, string(order.Status))

	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"items":    len(order.Items),
		"total":    order.Total.StringFixed(2),
	}).Info("order created")
	return order, nil
}

func (s *Service) createOrder(ctx context.Context, in CreateOrderInput) (domain.Order, int, error) {
	userID, err := domain.ParseID("user_id", in.UserID)
	if err != nil {
		return domain.Order{}, 0, err
	}

	status := domain.OrderStatus(strings.TrimSpace(string(in.Status)))
	if status == "" {
		status = domain.OrderStatusPending
	}
	if !status.Valid() {
		return domain.Order{}, 0, fmt.Errorf("%w: %q", domain.ErrInvalidOrderStatus, in.Status)
	}
	if !in.PaymentMethod.Valid() {
		return domain.Order{}, 0, fmt.Errorf("%w: %q", domain.ErrInvalidPaymentMethod, in.PaymentMethod)
	}
	if err := pricing.ValidateItems(in.Items); err != nil {
		return domain.Order{}, 0, err
	}

	exists, err := s.users.Exists(ctx, userID)
	if err != nil {
		return domain.Order{}, 0, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return domain.Order{}, 0, fmt.Errorf("%w: %s", domain.ErrUserNotFound, userID)
	}

	now := s.now().UTC()
	priced, err := s.pricer.PriceOrder(ctx, in.Items, now)
	if err != nil {
		return domain.Order{}, 0, err
	}

	order := domain.Order{
		ID:            domain.NewID(),
		UserID:        userID,
		Status:        status,
		PaymentMethod: in.PaymentMethod,
		Items:         priced.Items,
		Total:         priced.Total,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, 0, errors.Join(errs...)
	}

	if err := s.orders.Place(ctx, order); err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) && s.metrics != nil {
			// Остаток ушёл между расчётом и записью.
			s.metrics.RecordStockConflict()
		}
		return domain.Order{}, 0, err
	}
	return order, priced.PromotionsApplied, nil
}

// GetOrder возвращает заказ по ID.
func (s *Service) GetOrder(ctx context.Context, rawID string) (domain.Order, error) {
	id, err := domain.ParseID("order_id", rawID)
	if err != nil {
		return domain.Order{}, err
	}
	return s.orders.Get(ctx, id)
}

// Timeline возвращает события заказа. Без timeline-репозитория список пуст.
func (s *Service) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.List(ctx, orderID)
}

// ListUserOrders возвращает заказы пользователя от новых к старым.
func (s *Service) ListUserOrders(ctx context.Context, rawUserID string, limit int) ([]domain.Order, error) {
	userID, err := domain.ParseID("user_id", rawUserID)
	if err != nil {
		return nil, err
	}
	exists, err := s.users.Exists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, userID)
	}
	return s.orders.ListByUser(ctx, userID, limit)
}

// ListOrders возвращает заказы всех пользователей по статусу, способу оплаты и периоду.
func (s *Service) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidOrderStatus, filter.Status)
	}
	if filter.PaymentMethod != "" && !filter.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPaymentMethod, filter.PaymentMethod)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return nil, fmt.Errorf("%w: from is after to", domain.ErrInvalidFilter)
	}
	return s.orders.List(ctx, filter)
}

// UpdateStatus переводит заказ в новый статус по state machine.
// Без ExpectedVersion конфликт версий повторяется с экспоненциальной задержкой.
func (s *Service) UpdateStatus(ctx context.Context, in UpdateStatusInput) (domain.Order, error) {
	id, err := domain.ParseID("order_id", in.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !in.Status.Valid() {
		return domain.Order{}, fmt.Errorf("%w: %q", domain.ErrInvalidOrderStatus, in.Status)
	}

	attempts := statusUpdateMaxRetries
	if in.ExpectedVersion != nil {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		current, err := s.orders.Get(ctx, id)
		if err != nil {
			return domain.Order{}, err
		}
		version := current.Version
		if in.ExpectedVersion != nil {
			version = *in.ExpectedVersion
		}
		if !domain.CanTransition(current.Status, in.Status) {
			return domain.Order{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, current.Status, in.Status)
		}

		updated, err := s.orders.UpdateStatus(ctx, id, version, in.Status, s.now())
		if err == nil {
			if s.metrics != nil {
				s.metrics.RecordStatusChange(string(updated.Status))
			}
			reason := string(updated.Status)
			if in.Reason != "" {
				reason = reason + ": " + in.Reason
			}
			s.afterCommit(ctx, updated, domain.TimelineOrderStatusChanged, domain.EventOrderStatusChanged, reason)
			return updated, nil
		}
		if !domain.IsVersionConflict(err) || attempt == attempts-1 {
			return domain.Order{}, err
		}

		s.logger.WithFields(log.Fields{
			"order_id": id,
			"attempt":  attempt + 1,
		}).Warn("version conflict detected, retrying")

		select {
		case <-ctx.Done():
			return domain.Order{}, ctx.Err()
		case <-time.After(statusUpdateBaseDelay * time.Duration(1<<uint(attempt))):
		}
	}
	return domain.Order{}, domain.ErrOrderVersionConflict
}

func (s *Service) recordFailure(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		s.metrics.RecordOrderFailed(metrics.FailureInsufficientStock)
	case domain.IsNotFound(err):
		s.metrics.RecordOrderFailed(metrics.FailureNotFound)
	case domain.IsValidation(err):
		s.metrics.RecordOrderFailed(metrics.FailureValidation)
	default:
		s.metrics.RecordOrderFailed(metrics.FailureStorage)
	}
}
