package ordering

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// OrderEventPayload — тело событий order.created и order.status_changed.
type OrderEventPayload struct {
	OrderID       string         `json:"order_id"`
	UserID        string         `json:"user_id"`
	Status        string         `json:"status"`
	PaymentMethod string         `json:"payment_method"`
	Total         string         `json:"total"`
	Version       int64          `json:"version"`
	Items         []EventItem    `json:"items,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// EventItem — позиция заказа в событии.
type EventItem struct {
	SKU         string `json:"sku"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	PromotionID string `json:"promotion_id,omitempty"`
}

// afterCommit пишет timeline и outbox после успешной записи заказа.
// Ошибки только логируются: заказ уже сохранён. Отмена запроса записи не прерывает.
func (s *Service) afterCommit(ctx context.Context, order domain.Order, timelineType, eventType, reason string) {
	ctx = context.WithoutCancel(ctx)
	occurred := order.UpdatedAt
	if occurred.IsZero() {
		occurred = s.now()
	}

	if s.timeline != nil {
		event := domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     timelineType,
			Reason:   reason,
			Occurred: occurred,
		}
		if err := s.timeline.Append(ctx, event); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"event":    timelineType,
			}).Warn("append timeline event failed")
		}
	}

	if s.outbox == nil {
		return
	}

	payload := OrderEventPayload{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		Total:         order.Total.StringFixed(2),
		Version:       order.Version,
		OccurredAt:    occurred,
	}
	if eventType == domain.EventOrderCreated {
		payload.Items = make([]EventItem, 0, len(order.Items))
		for _, item := range order.Items {
			payload.Items = append(payload.Items, EventItem{
				SKU:         item.SKU,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice.StringFixed(2),
				PromotionID: item.PromotionID,
			})
		}
	} else if reason != "" {
		payload.Metadata = map[string]any{"reason": reason}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := s.outbox.Enqueue(ctx, msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("enqueue event failed")
	}
}
