package notification

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/config"
	"orderflow/internal/logger"
	"orderflow/pkg/models"
)

func notifyRequest(t *testing.T, nt models.NotificationType, orderID, customerID string, data map[string]string) models.Envelope {
	t.Helper()
	env, err := models.NewEnvelope(models.EventTypeNotificationRequested, "corr-1", models.NotificationRequestedPayload{
		NotificationType: nt,
		OrderID:          orderID,
		CustomerID:       customerID,
		CustomerEmail:    customerID + "@example.com",
		Data:             data,
	})
	require.NoError(t, err)
	return env
}

func TestProcessMessageRendersTemplate(t *testing.T) {
	svc := NewService(config.NotificationConfig{}, logger.NopLogger())

	env := notifyRequest(t, models.NotificationPaymentReceived, "ORD-1", "CUST-1", map[string]string{
		"amount":         "1999.98",
		"currency":       "USD",
		"transaction_id": "TXN-abc",
	})
	require.NoError(t, svc.ProcessMessage(context.Background(), env))

	history := svc.History()
	require.Len(t, history, 1)
	assert.Equal(t, "Payment received for order ORD-1", history[0].Subject)
	assert.Contains(t, history[0].Body, "1999.98 USD")
	assert.Contains(t, history[0].Body, "TXN-abc")
}

func TestProcessMessageUnknownTypeDropped(t *testing.T) {
	svc := NewService(config.NotificationConfig{}, logger.NopLogger())

	env := notifyRequest(t, models.NotificationType("SHIPPING_UPDATE"), "ORD-1", "CUST-1", nil)
	require.NoError(t, svc.ProcessMessage(context.Background(), env), "unknown types are dropped, not retried")
	assert.Empty(t, svc.History())
}

func TestProcessMessageDeduplicatesByOrderAndType(t *testing.T) {
	svc := NewService(config.NotificationConfig{}, logger.NopLogger())

	first := notifyRequest(t, models.NotificationOrderConfirmation, "ORD-1", "CUST-1", nil)
	require.NoError(t, svc.ProcessMessage(context.Background(), first))

	// Same order and type under a fresh event id.
	second := notifyRequest(t, models.NotificationOrderConfirmation, "ORD-1", "CUST-1", nil)
	require.NoError(t, svc.ProcessMessage(context.Background(), second))

	// Different type for the same order still goes out.
	third := notifyRequest(t, models.NotificationPaymentReceived, "ORD-1", "CUST-1", nil)
	require.NoError(t, svc.ProcessMessage(context.Background(), third))

	assert.Len(t, svc.History(), 2)
}

func TestRateLimitPerCustomerRollingHour(t *testing.T) {
	svc := NewService(config.NotificationConfig{RateLimitPerHour: 10}, logger.NopLogger())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	send := func(n int, customerID string) {
		env := notifyRequest(t, models.NotificationOrderConfirmation, fmt.Sprintf("ORD-%s-%d", customerID, n), customerID, nil)
		require.NoError(t, svc.ProcessMessage(context.Background(), env))
	}

	for i := 0; i < 10; i++ {
		send(i, "CUST-1")
	}
	require.Len(t, svc.History(), 10, "tenth notification within the hour is allowed")

	send(10, "CUST-1")
	assert.Len(t, svc.History(), 10, "eleventh is dropped")

	// A different customer has an independent window.
	send(0, "CUST-2")
	assert.Len(t, svc.History(), 11)

	// Once the window slides past the first sends, capacity frees up.
	svc.now = func() time.Time { return base.Add(61 * time.Minute) }
	send(11, "CUST-1")
	assert.Len(t, svc.History(), 12)
}

func TestSubstituteLeavesNoMarkers(t *testing.T) {
	out := substitute("Order #{order_id}: #{missing} done", map[string]string{"order_id": "ORD-1"})
	assert.Equal(t, "Order ORD-1:  done", out)
}
