package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of events published to queues (count)",
		},
		[]string{"service", "queue", "event_type"},
	)

	MessagesConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_consumed_total",
			Help: "Total number of messages processed by consumers (count)",
		},
		[]string{"service", "queue", "status"},
	)

	HandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "handler_duration_ms",
			Help:    "Handler processing duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 25000},
		},
		[]string{"service", "queue", "status"},
	)

	PollErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_errors_total",
			Help: "Total number of failed receive attempts against the broker (count)",
		},
		[]string{"service", "queue"},
	)

	IdempotencyStoreSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "idempotency_store_size",
			Help: "Number of keys currently held by the idempotency store (count)",
		},
		[]string{"service"},
	)

	OrdersCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of order creation attempts (count)",
		},
		[]string{"status"},
	)

	OrderAmount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "order_amount",
			Help:    "Total amount of created orders (currency units)",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)

	PaymentsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_processed_total",
			Help: "Total number of payment attempts by outcome (count)",
		},
		[]string{"status"},
	)

	PaymentGatewayDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_duration_ms",
			Help:    "Duration of payment gateway calls in milliseconds",
			Buckets: []float64{50, 100, 200, 300, 400, 500, 1000, 2500},
		},
	)

	ReservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_reservations_total",
			Help: "Total number of reservation attempts by outcome (count)",
		},
		[]string{"status"},
	)

	StockReserved = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inventory_stock_reserved",
			Help: "Units currently reserved per product (count)",
		},
		[]string{"product_id"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notification requests by outcome (count)",
		},
		[]string{"status", "notification_type"},
	)

	DLQMessagesObservedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_observed_total",
			Help: "Total number of messages observed on dead-letter queues (count)",
		},
		[]string{"queue", "event_type"},
	)

	DLQReplaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_replays_total",
			Help: "Total number of manual DLQ replays (count)",
		},
		[]string{"status"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)
)

func RegisterRuntimeMetrics() {
	prometheus.MustRegister(EventsPublishedTotal)
	prometheus.MustRegister(MessagesConsumedTotal)
	prometheus.MustRegister(HandlerDuration)
	prometheus.MustRegister(PollErrorsTotal)
	prometheus.MustRegister(IdempotencyStoreSize)
}

func RegisterOrderMetrics() {
	prometheus.MustRegister(OrdersCreatedTotal)
	prometheus.MustRegister(OrderAmount)
}

func RegisterPaymentMetrics() {
	prometheus.MustRegister(PaymentsProcessedTotal)
	prometheus.MustRegister(PaymentGatewayDuration)
}

func RegisterInventoryMetrics() {
	prometheus.MustRegister(ReservationsTotal)
	prometheus.MustRegister(StockReserved)
}

func RegisterNotificationMetrics() {
	prometheus.MustRegister(NotificationsTotal)
}

func RegisterMonitorMetrics() {
	prometheus.MustRegister(DLQMessagesObservedTotal)
	prometheus.MustRegister(DLQReplaysTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func ObserveHandlerDuration(service, queue, status string, duration time.Duration) {
	HandlerDuration.WithLabelValues(service, queue, status).Observe(float64(duration.Milliseconds()))
}

func IncMessageConsumed(service, queue, status string) {
	MessagesConsumedTotal.WithLabelValues(service, queue, status).Inc()
}

func IncEventPublished(service, queue, eventType string) {
	EventsPublishedTotal.WithLabelValues(service, queue, eventType).Inc()
}

func SetIdempotencyStoreSize(service string, size int) {
	IdempotencyStoreSize.WithLabelValues(service).Set(float64(size))
}

func SetStockReserved(productID string, reserved int) {
	StockReserved.WithLabelValues(productID).Set(float64(reserved))
}

func ObservePaymentGatewayDuration(duration time.Duration) {
	PaymentGatewayDuration.Observe(float64(duration.Milliseconds()))
}
