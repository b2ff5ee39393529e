package domain

import "time"

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

const (
	// TimelineOrderCreated фиксирует оформление заказа, Reason содержит начальный статус.
	TimelineOrderCreated = "OrderCreated"
	// TimelineOrderStatusChanged фиксирует смену статуса, Reason содержит новый статус.
	TimelineOrderStatusChanged = "OrderStatusChanged"
)
