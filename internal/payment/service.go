package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"orderflow/internal/broker"
	"orderflow/internal/config"
	"orderflow/internal/constants"
	"orderflow/internal/logger"
	"orderflow/internal/runtime"
	"orderflow/pkg/circuitbreaker"
	"orderflow/pkg/metrics"
	"orderflow/pkg/models"

	"github.com/sony/gobreaker"
)

type Publisher interface {
	Publish(ctx context.Context, queueURL string, env models.Envelope) error
}

// Service consumes payment requests, charges the gateway and advances the
// saga. A decline is a terminal business outcome: the message is
// acknowledged and a failure notification replaces the inventory request.
// Gateway infrastructure errors and an open breaker propagate so the
// broker redelivers.
type Service struct {
	runtime.EnvelopeHandler

	gateway   Gateway
	publisher Publisher
	queues    broker.QueueURLs
	logger    logger.Logger
	cfg       config.PaymentConfig
	breaker   *circuitbreaker.Wrapper

	mu        sync.Mutex
	processed map[string]string
}

func NewService(gateway Gateway, publisher Publisher, queues broker.QueueURLs, cfg config.PaymentConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) *Service {
	s := &Service{
		gateway:   gateway,
		publisher: publisher,
		queues:    queues,
		logger:    log,
		cfg:       cfg,
		processed: make(map[string]string),
	}

	if cbCfg.Enabled {
		bc := circuitbreaker.DefaultConfig("payment-gateway")
		if cbCfg.MaxRequests > 0 {
			bc.MaxRequests = cbCfg.MaxRequests
		}
		if cbCfg.Interval > 0 {
			bc.Interval = cbCfg.Interval
		}
		if cbCfg.Timeout > 0 {
			bc.Timeout = cbCfg.Timeout
		}
		if cbCfg.FailureRatio > 0 && cbCfg.MinRequests > 0 {
			bc.ReadyToTrip = func(counts gobreaker.Counts) bool {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= cbCfg.MinRequests && ratio >= cbCfg.FailureRatio
			}
		}
		bc.OnStateChange = func(name string, from, to gobreaker.State) {
			log.Warnw("payment gateway circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		}
		s.breaker = circuitbreaker.NewWrapper(bc)
	}

	return s
}

// IdempotencyKey keys on the order id so a re-published payment request for
// the same order is treated as a duplicate even under a fresh event id.
func (s *Service) IdempotencyKey(env models.Envelope) string {
	var payload models.PaymentRequestedPayload
	if err := env.DecodePayload(&payload); err != nil || payload.OrderID == "" {
		return env.EventID
	}
	return constants.IdempotencyKeyPrefixPayment + payload.OrderID
}

func (s *Service) ProcessMessage(ctx context.Context, env models.Envelope) error {
	var payload models.PaymentRequestedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return fmt.Errorf("failed to decode payment request: %w", err)
	}

	if txn, ok := s.alreadyCharged(payload.OrderID); ok {
		s.logger.InfowCtx(ctx, "payment already processed, skipping charge",
			"order_id", payload.OrderID, "transaction_id", txn)
		return nil
	}

	txnID, err := s.charge(ctx, payload)
	switch {
	case err == nil:
		s.recordCharge(payload.OrderID, txnID)
		metrics.PaymentsProcessedTotal.WithLabelValues("completed").Inc()
		s.logger.InfowCtx(ctx, "payment completed",
			"order_id", payload.OrderID, "transaction_id", txnID, "amount", payload.Amount)
		return s.emitSuccess(ctx, env, payload, txnID)

	case errors.Is(err, ErrDeclined):
		metrics.PaymentsProcessedTotal.WithLabelValues("declined").Inc()
		s.logger.WarnwCtx(ctx, "payment declined",
			"order_id", payload.OrderID, "amount", payload.Amount)
		return s.emitDecline(ctx, env, payload)

	default:
		metrics.PaymentsProcessedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("payment gateway error for order %s: %w", payload.OrderID, err)
	}
}

func (s *Service) charge(ctx context.Context, payload models.PaymentRequestedPayload) (string, error) {
	if s.breaker == nil {
		return s.gateway.Charge(ctx, payload.OrderID, payload.Amount, payload.Currency)
	}

	result, err := s.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		txn, chargeErr := s.gateway.Charge(ctx, payload.OrderID, payload.Amount, payload.Currency)
		if errors.Is(chargeErr, ErrDeclined) {
			// Declines are business outcomes and must not trip the breaker.
			return declineResult{}, nil
		}
		return txn, chargeErr
	})
	s.breaker.RecordRequest(err == nil)
	if err != nil {
		return "", err
	}
	if _, declined := result.(declineResult); declined {
		return "", ErrDeclined
	}
	return result.(string), nil
}

type declineResult struct{}

func (s *Service) emitSuccess(ctx context.Context, env models.Envelope, payload models.PaymentRequestedPayload, txnID string) error {
	reserveItems := make([]models.ReservationItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		reserveItems = append(reserveItems, models.ReservationItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	reserve, err := models.NewEnvelope(models.EventTypeInventoryReserveRequested, env.CorrelationID, models.InventoryReserveRequestedPayload{
		OrderID:       payload.OrderID,
		CustomerID:    payload.CustomerID,
		CustomerEmail: payload.CustomerEmail,
		Items:         reserveItems,
	})
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, s.queues.Inventory, reserve); err != nil {
		return fmt.Errorf("failed to publish inventory request: %w", err)
	}

	notify, err := models.NewEnvelope(models.EventTypeNotificationRequested, env.CorrelationID, models.NotificationRequestedPayload{
		NotificationType: models.NotificationPaymentReceived,
		OrderID:          payload.OrderID,
		CustomerID:       payload.CustomerID,
		CustomerEmail:    payload.CustomerEmail,
		Data: map[string]string{
			"amount":         formatAmount(payload.Amount),
			"currency":       payload.Currency,
			"transaction_id": txnID,
		},
	})
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, s.queues.Notifications, notify); err != nil {
		return fmt.Errorf("failed to publish payment notification: %w", err)
	}

	if s.cfg.EmitResultEvents {
		return s.emitResult(ctx, env.CorrelationID, models.PaymentResultPayload{
			OrderID:       payload.OrderID,
			Status:        models.PaymentStatusCompleted,
			TransactionID: txnID,
		})
	}
	return nil
}

func (s *Service) emitDecline(ctx context.Context, env models.Envelope, payload models.PaymentRequestedPayload) error {
	notify, err := models.NewEnvelope(models.EventTypeNotificationRequested, env.CorrelationID, models.NotificationRequestedPayload{
		NotificationType: models.NotificationPaymentFailed,
		OrderID:          payload.OrderID,
		CustomerID:       payload.CustomerID,
		CustomerEmail:    payload.CustomerEmail,
		Data: map[string]string{
			"amount":   formatAmount(payload.Amount),
			"currency": payload.Currency,
			"reason":   "payment declined",
		},
	})
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, s.queues.Notifications, notify); err != nil {
		return fmt.Errorf("failed to publish decline notification: %w", err)
	}

	if s.cfg.EmitResultEvents {
		return s.emitResult(ctx, env.CorrelationID, models.PaymentResultPayload{
			OrderID: payload.OrderID,
			Status:  models.PaymentStatusDeclined,
			Reason:  "payment declined",
		})
	}
	return nil
}

func (s *Service) emitResult(ctx context.Context, correlationID string, result models.PaymentResultPayload) error {
	eventType := models.EventTypePaymentProcessed
	if result.Status == models.PaymentStatusDeclined {
		eventType = models.EventTypePaymentFailed
	}
	env, err := models.NewEnvelope(eventType, correlationID, result)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, s.queues.Orders, env); err != nil {
		return fmt.Errorf("failed to publish payment result: %w", err)
	}
	return nil
}

func (s *Service) alreadyCharged(orderID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.processed[orderID]
	return txn, ok
}

func (s *Service) recordCharge(orderID, txnID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[orderID] = txnID
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}
