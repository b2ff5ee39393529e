package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины неудачного создания заказа для метки reason.
const (
	FailureValidation        = "validation"
	FailureNotFound          = "not_found"
	FailureInsufficientStock = "insufficient_stock"
	FailureStorage           = "storage"
)

// OrderMetrics содержит метрики оформления заказов.
type OrderMetrics struct {
	ordersCreated     prometheus.Counter
	orderFailures     *prometheus.CounterVec
	placementDuration prometheus.Histogram
	orderItems        prometheus.Histogram
	promotionsApplied prometheus.Counter
	stockConflicts    prometheus.Counter
	statusChanges     *prometheus.CounterVec
}

// NewOrderMetrics создаёт метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в переданном реестре (удобно для тестов).
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_created_total",
			Help: "Total number of orders created",
		}),
		orderFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_order_failures_total",
			Help: "Total number of rejected order creations by reason",
		}, []string{"reason"}),
		placementDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_order_placement_duration_seconds",
			Help:    "Duration of order creation including pricing and stock decrement",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		orderItems: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_order_items",
			Help:    "Number of line items per created order",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		promotionsApplied: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_promotions_applied_total",
			Help: "Total number of line items priced with an active promotion",
		}),
		stockConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_stock_conflicts_total",
			Help: "Orders rejected at write time because stock was taken concurrently",
		}),
		statusChanges: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_order_status_changes_total",
			Help: "Total number of order status transitions by target status",
		}, []string{"status"}),
	}
}

// RecordOrderCreated фиксирует успешно созданный заказ.
func (m *OrderMetrics) RecordOrderCreated(items, promotions int, duration time.Duration) {
	m.ordersCreated.Inc()
	m.orderItems.Observe(float64(items))
	m.promotionsApplied.Add(float64(promotions))
	m.placementDuration.Observe(duration.Seconds())
}

// RecordOrderFailed увеличивает счётчик отказов с указанной причиной.
func (m *OrderMetrics) RecordOrderFailed(reason string) {
	m.orderFailures.WithLabelValues(reason).Inc()
}

// RecordStockConflict фиксирует гонку за остаток, проигранную на записи.
func (m *OrderMetrics) RecordStockConflict() {
	m.stockConflicts.Inc()
}

// RecordStatusChange увеличивает счётчик переходов в статус.
func (m *OrderMetrics) RecordStatusChange(status string) {
	m.statusChanges.WithLabelValues(status).Inc()
}
