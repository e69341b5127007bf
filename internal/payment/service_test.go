package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/broker"
	"orderflow/internal/config"
	"orderflow/internal/logger"
	"orderflow/pkg/models"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedEvent
	err       error
}

type publishedEvent struct {
	queueURL string
	env      models.Envelope
}

func (f *fakePublisher) Publish(_ context.Context, queueURL string, env models.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedEvent{queueURL: queueURL, env: env})
	return nil
}

func (f *fakePublisher) events() []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedEvent, len(f.published))
	copy(out, f.published)
	return out
}

type fakeGateway struct {
	txnID string
	err   error
	calls int
}

func (f *fakeGateway) Charge(_ context.Context, _ string, _ float64, _ string) (string, error) {
	f.calls++
	return f.txnID, f.err
}

func testQueues() broker.QueueURLs {
	return broker.QueueURLs{
		Orders:        "mem://queues/test-orders",
		Payments:      "mem://queues/test-payments",
		Inventory:     "mem://queues/test-inventory",
		Notifications: "mem://queues/test-notifications",
	}
}

func paymentRequest(t *testing.T, orderID string) models.Envelope {
	t.Helper()
	env, err := models.NewEnvelope(models.EventTypePaymentRequested, "corr-1", models.PaymentRequestedPayload{
		OrderID:       orderID,
		CustomerID:    "CUST-100",
		CustomerEmail: "customer@example.com",
		Amount:        1999.98,
		Currency:      "USD",
		Items: []models.OrderItem{
			{ProductID: "PROD-1", SKU: "SKU-1", Quantity: 2, UnitPrice: 999.99},
		},
	})
	require.NoError(t, err)
	return env
}

func TestProcessMessageSuccess(t *testing.T) {
	pub := &fakePublisher{}
	gw := &fakeGateway{txnID: "TXN-abc"}
	svc := NewService(gw, pub, testQueues(), config.PaymentConfig{}, config.CircuitBreakerConfig{}, logger.NopLogger())

	env := paymentRequest(t, "ORD-1")
	err := svc.ProcessMessage(context.Background(), env)
	require.NoError(t, err)

	events := pub.events()
	require.Len(t, events, 2)

	assert.Equal(t, "mem://queues/test-inventory", events[0].queueURL)
	assert.Equal(t, models.EventTypeInventoryReserveRequested, events[0].env.Type)
	assert.Equal(t, "corr-1", events[0].env.CorrelationID)

	var reserve models.InventoryReserveRequestedPayload
	require.NoError(t, events[0].env.DecodePayload(&reserve))
	assert.Equal(t, "ORD-1", reserve.OrderID)
	require.Len(t, reserve.Items, 1)
	assert.Equal(t, "PROD-1", reserve.Items[0].ProductID)
	assert.Equal(t, 2, reserve.Items[0].Quantity)

	assert.Equal(t, "mem://queues/test-notifications", events[1].queueURL)
	var notify models.NotificationRequestedPayload
	require.NoError(t, events[1].env.DecodePayload(&notify))
	assert.Equal(t, models.NotificationPaymentReceived, notify.NotificationType)
	assert.Equal(t, "TXN-abc", notify.Data["transaction_id"])
	assert.Equal(t, "1999.98", notify.Data["amount"])
}

func TestProcessMessageDeclinedAcksAndNotifies(t *testing.T) {
	pub := &fakePublisher{}
	gw := &fakeGateway{err: ErrDeclined}
	svc := NewService(gw, pub, testQueues(), config.PaymentConfig{}, config.CircuitBreakerConfig{}, logger.NopLogger())

	err := svc.ProcessMessage(context.Background(), paymentRequest(t, "ORD-2"))
	require.NoError(t, err, "a decline is terminal and must not be retried")

	events := pub.events()
	require.Len(t, events, 1)
	assert.Equal(t, "mem://queues/test-notifications", events[0].queueURL)

	var notify models.NotificationRequestedPayload
	require.NoError(t, events[0].env.DecodePayload(&notify))
	assert.Equal(t, models.NotificationPaymentFailed, notify.NotificationType)
	assert.Equal(t, "payment declined", notify.Data["reason"])
}

func TestProcessMessageGatewayErrorPropagates(t *testing.T) {
	pub := &fakePublisher{}
	gw := &fakeGateway{err: errors.New("gateway unreachable")}
	svc := NewService(gw, pub, testQueues(), config.PaymentConfig{}, config.CircuitBreakerConfig{}, logger.NopLogger())

	err := svc.ProcessMessage(context.Background(), paymentRequest(t, "ORD-3"))
	require.Error(t, err)
	assert.Empty(t, pub.events(), "no saga events on infrastructure failure")
}

func TestProcessMessageDuplicateOrderSkipsCharge(t *testing.T) {
	pub := &fakePublisher{}
	gw := &fakeGateway{txnID: "TXN-once"}
	svc := NewService(gw, pub, testQueues(), config.PaymentConfig{}, config.CircuitBreakerConfig{}, logger.NopLogger())

	require.NoError(t, svc.ProcessMessage(context.Background(), paymentRequest(t, "ORD-4")))
	require.NoError(t, svc.ProcessMessage(context.Background(), paymentRequest(t, "ORD-4")))

	assert.Equal(t, 1, gw.calls, "gateway charged exactly once")
	assert.Len(t, pub.events(), 2, "duplicate emits no additional events")
}

func TestProcessMessageEmitsResultEvents(t *testing.T) {
	pub := &fakePublisher{}
	gw := &fakeGateway{txnID: "TXN-res"}
	cfg := config.PaymentConfig{EmitResultEvents: true}
	svc := NewService(gw, pub, testQueues(), cfg, config.CircuitBreakerConfig{}, logger.NopLogger())

	require.NoError(t, svc.ProcessMessage(context.Background(), paymentRequest(t, "ORD-5")))

	events := pub.events()
	require.Len(t, events, 3)
	last := events[2]
	assert.Equal(t, "mem://queues/test-orders", last.queueURL)
	assert.Equal(t, models.EventTypePaymentProcessed, last.env.Type)

	var result models.PaymentResultPayload
	require.NoError(t, last.env.DecodePayload(&result))
	assert.Equal(t, models.PaymentStatusCompleted, result.Status)
	assert.Equal(t, "TXN-res", result.TransactionID)
}

func TestIdempotencyKeyUsesOrderID(t *testing.T) {
	svc := NewService(&fakeGateway{}, &fakePublisher{}, testQueues(), config.PaymentConfig{}, config.CircuitBreakerConfig{}, logger.NopLogger())

	env := paymentRequest(t, "ORD-6")
	assert.Equal(t, "payment:ORD-6", svc.IdempotencyKey(env))

	malformed := env
	malformed.Payload = []byte(`{`)
	assert.Equal(t, env.EventID, svc.IdempotencyKey(malformed))
}

func TestCircuitBreakerDeclineDoesNotTrip(t *testing.T) {
	pub := &fakePublisher{}
	gw := &fakeGateway{err: ErrDeclined}
	cbCfg := config.CircuitBreakerConfig{Enabled: true, MinRequests: 3, FailureRatio: 0.5}
	svc := NewService(gw, pub, testQueues(), config.PaymentConfig{}, cbCfg, logger.NopLogger())

	for i := 0; i < 10; i++ {
		require.NoError(t, svc.ProcessMessage(context.Background(), paymentRequest(t, "ORD-7")))
	}
	assert.False(t, svc.breaker.IsOpen(), "declines are successes from the breaker's view")
}

func TestSimulatedGatewayFailureMarker(t *testing.T) {
	gw := NewSimulatedGateway(config.PaymentConfig{
		FailureRate:   0,
		FailureMarker: "FAIL",
	})

	_, err := gw.Charge(context.Background(), "ORD-FAIL-1", 10.00, "USD")
	assert.ErrorIs(t, err, ErrDeclined)

	txn, err := gw.Charge(context.Background(), "ORD-OK-1", 10.00, "USD")
	require.NoError(t, err)
	assert.Contains(t, txn, "TXN-")
}

func TestSimulatedGatewayRespectsContext(t *testing.T) {
	gw := NewSimulatedGateway(config.PaymentConfig{
		MinLatency: time.Second,
		MaxLatency: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := gw.Charge(ctx, "ORD-8", 10.00, "USD")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
