package order

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"orderflow/internal/broker"
	"orderflow/internal/logger"
	"orderflow/pkg/logging"
	"orderflow/pkg/metrics"
	"orderflow/pkg/models"
	"orderflow/pkg/tracing"
)

// Publisher is what the producer needs from the broker layer.
type Publisher interface {
	Publish(ctx context.Context, queueURL string, env models.Envelope) error
}

// Service validates order requests and emits the order-created, payment
// request and confirmation events that start the saga. Emission failures
// propagate to the caller; already-sent events are not rolled back.
type Service struct {
	publisher Publisher
	queues    broker.QueueURLs
	logger    logger.Logger
	now       func() time.Time
}

func NewService(publisher Publisher, queues broker.QueueURLs, log logger.Logger) *Service {
	return &Service{
		publisher: publisher,
		queues:    queues,
		logger:    log,
		now:       time.Now,
	}
}

func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (models.Order, error) {
	if err := req.Validate(); err != nil {
		metrics.OrdersCreatedTotal.WithLabelValues("validation_error").Inc()
		return models.Order{}, err
	}

	correlationID := uuid.NewString()
	now := s.now().UTC()

	order := models.Order{
		OrderID:         "ORD-" + uuid.NewString(),
		CustomerID:      req.CustomerID,
		CustomerEmail:   req.CustomerEmail,
		Items:           req.Items,
		TotalAmount:     ComputeTotal(req.Items),
		Currency:        req.Currency,
		ShippingAddress: req.ShippingAddress,
		Status:          models.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if order.Currency == "" {
		order.Currency = "USD"
	}

	ctx = logging.WithCorrelationID(ctx, correlationID)
	ctx = logging.WithOrderID(ctx, order.OrderID)
	ctx, span := tracing.GetTracer("order-service").Start(ctx, "order.create")
	defer span.End()

	if err := s.emitOrderEvents(ctx, order, correlationID); err != nil {
		metrics.OrdersCreatedTotal.WithLabelValues("emit_error").Inc()
		return models.Order{}, err
	}

	metrics.OrdersCreatedTotal.WithLabelValues("created").Inc()
	metrics.OrderAmount.Observe(order.TotalAmount)
	s.logger.InfowCtx(ctx, "Order created",
		"total_amount", order.TotalAmount,
		"currency", order.Currency,
		"item_count", len(order.Items),
	)

	return order, nil
}

func (s *Service) emitOrderEvents(ctx context.Context, order models.Order, correlationID string) error {
	created, err := models.NewEnvelope(models.EventTypeOrderCreated, correlationID, models.OrderCreatedPayload{
		Order: order,
	})
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, s.queues.Orders, created); err != nil {
		return fmt.Errorf("failed to publish order created event: %w", err)
	}

	payment, err := models.NewEnvelope(models.EventTypePaymentRequested, correlationID, models.PaymentRequestedPayload{
		OrderID:       order.OrderID,
		CustomerID:    order.CustomerID,
		CustomerEmail: order.CustomerEmail,
		Amount:        order.TotalAmount,
		Currency:      order.Currency,
		Items:         order.Items,
	})
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, s.queues.Payments, payment); err != nil {
		return fmt.Errorf("failed to publish payment request event: %w", err)
	}

	confirmation, err := models.NewEnvelope(models.EventTypeNotificationRequested, correlationID, models.NotificationRequestedPayload{
		NotificationType: models.NotificationOrderConfirmation,
		OrderID:          order.OrderID,
		CustomerID:       order.CustomerID,
		CustomerEmail:    order.CustomerEmail,
		Data: map[string]string{
			"amount":   fmt.Sprintf("%.2f", order.TotalAmount),
			"currency": order.Currency,
		},
	})
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, s.queues.Notifications, confirmation); err != nil {
		return fmt.Errorf("failed to publish confirmation notification: %w", err)
	}

	return nil
}

// ComputeTotal derives the order total from its items, rounded to cents.
func ComputeTotal(items []models.OrderItem) float64 {
	var total float64
	for _, item := range items {
		total += float64(item.Quantity) * item.UnitPrice
	}
	return math.Round(total*100) / 100
}
