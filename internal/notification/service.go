package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"orderflow/internal/config"
	"orderflow/internal/constants"
	"orderflow/internal/logger"
	"orderflow/internal/runtime"
	"orderflow/pkg/metrics"
	"orderflow/pkg/models"
)

// SentNotification is one delivered (simulated) notification, kept for the
// admin history view and the tests.
type SentNotification struct {
	NotificationType models.NotificationType `json:"notificationType"`
	OrderID          string                  `json:"orderId"`
	CustomerID       string                  `json:"customerId"`
	CustomerEmail    string                  `json:"customerEmail"`
	Subject          string                  `json:"subject"`
	Body             string                  `json:"body"`
	SentAt           time.Time               `json:"sentAt"`
}

type dedupKey struct {
	orderID          string
	notificationType models.NotificationType
}

// Service renders and "sends" customer notifications. Sends are simulated
// as structured log lines. Duplicate (order, type) pairs are dropped, as is
// anything past the per-customer rolling-hour limit.
type Service struct {
	runtime.EnvelopeHandler
	runtime.EventIDKey

	logger   logger.Logger
	perHour  int
	now      func() time.Time

	mu      sync.Mutex
	sent    map[dedupKey]struct{}
	history []SentNotification
	windows map[string][]time.Time
}

func NewService(cfg config.NotificationConfig, log logger.Logger) *Service {
	perHour := cfg.RateLimitPerHour
	if perHour <= 0 {
		perHour = constants.DefaultNotificationRateLimit
	}

	return &Service{
		logger:  log,
		perHour: perHour,
		now:     time.Now,
		sent:    make(map[dedupKey]struct{}),
		windows: make(map[string][]time.Time),
	}
}

func (s *Service) ProcessMessage(ctx context.Context, env models.Envelope) error {
	var payload models.NotificationRequestedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return fmt.Errorf("failed to decode notification request: %w", err)
	}

	tmpl, ok := lookupTemplate(payload.NotificationType)
	if !ok {
		metrics.NotificationsTotal.WithLabelValues("unknown_type", string(payload.NotificationType)).Inc()
		s.logger.WarnwCtx(ctx, "unknown notification type, dropping",
			"notification_type", payload.NotificationType, "order_id", payload.OrderID)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupKey{orderID: payload.OrderID, notificationType: payload.NotificationType}
	if _, dup := s.sent[key]; dup {
		metrics.NotificationsTotal.WithLabelValues("duplicate", string(payload.NotificationType)).Inc()
		s.logger.InfowCtx(ctx, "duplicate notification dropped",
			"notification_type", payload.NotificationType, "order_id", payload.OrderID)
		return nil
	}

	if !s.allowLocked(payload.CustomerID) {
		metrics.NotificationsTotal.WithLabelValues("rate_limited", string(payload.NotificationType)).Inc()
		s.logger.WarnwCtx(ctx, "notification rate limit exceeded, dropping",
			"customer_id", payload.CustomerID, "order_id", payload.OrderID,
			"limit_per_hour", s.perHour)
		return nil
	}

	subject, body := tmpl.render(payload)
	sent := SentNotification{
		NotificationType: payload.NotificationType,
		OrderID:          payload.OrderID,
		CustomerID:       payload.CustomerID,
		CustomerEmail:    payload.CustomerEmail,
		Subject:          subject,
		Body:             body,
		SentAt:           s.now().UTC(),
	}

	s.sent[key] = struct{}{}
	s.history = append(s.history, sent)

	metrics.NotificationsTotal.WithLabelValues("sent", string(payload.NotificationType)).Inc()
	s.logger.InfowCtx(ctx, "notification sent",
		"notification_type", payload.NotificationType,
		"order_id", payload.OrderID,
		"customer_email", payload.CustomerEmail,
		"subject", subject,
		"body", body)
	return nil
}

// allowLocked enforces a rolling one hour window per customer. Timestamps
// older than the window are pruned lazily on each check.
func (s *Service) allowLocked(customerID string) bool {
	now := s.now()
	cutoff := now.Add(-constants.NotificationRateWindow)

	window := s.windows[customerID]
	kept := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= s.perHour {
		s.windows[customerID] = kept
		return false
	}

	s.windows[customerID] = append(kept, now)
	return true
}

// History returns a copy of everything sent so far, oldest first.
func (s *Service) History() []SentNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentNotification, len(s.history))
	copy(out, s.history)
	return out
}
