package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/broker"
	"orderflow/internal/config"
	"orderflow/internal/inventory"
	"orderflow/internal/logger"
	"orderflow/internal/notification"
	"orderflow/internal/order"
	"orderflow/internal/payment"
	"orderflow/internal/runtime"
	"orderflow/pkg/models"
)

// pipeline wires every stage over the in-memory broker, the way the
// services compose in production but inside one process.
type pipeline struct {
	client        *broker.InMemoryClient
	queues        broker.QueueURLs
	orders        *order.Service
	inventory     *inventory.Service
	notifications *notification.Service
	consumers     []*runtime.Consumer
}

func startPipeline(t *testing.T, paymentCfg config.PaymentConfig, stock []config.StockSeed) *pipeline {
	t.Helper()
	log := logger.NopLogger()
	client := broker.NewInMemoryClient()

	queuesCfg := config.QueuesConfig{
		Prefix:        "e2e-",
		Orders:        config.QueueSpec{Name: "orders", VisibilityTimeoutSeconds: 2, MaxReceiveCount: 3},
		Payments:      config.QueueSpec{Name: "payments", VisibilityTimeoutSeconds: 2, MaxReceiveCount: 5},
		Inventory:     config.QueueSpec{Name: "inventory", VisibilityTimeoutSeconds: 2, MaxReceiveCount: 3},
		Notifications: config.QueueSpec{Name: "notifications", VisibilityTimeoutSeconds: 2, MaxReceiveCount: 3},
	}
	queues, err := broker.EnsureTopology(context.Background(), client, queuesCfg, log)
	require.NoError(t, err)

	publisher := broker.NewPublisher(client, "e2e", log)

	p := &pipeline{
		client:        client,
		queues:        queues,
		orders:        order.NewService(publisher, queues, log),
		inventory:     inventory.NewService(publisher, queues, config.InventoryConfig{Stock: stock}, log),
		notifications: notification.NewService(config.NotificationConfig{RateLimitPerHour: 100}, log),
	}

	paymentSvc := payment.NewService(
		payment.NewSimulatedGateway(paymentCfg),
		publisher, queues, paymentCfg, config.CircuitBreakerConfig{}, log,
	)

	newOpts := func(name, url string) runtime.Options {
		return runtime.Options{
			ServiceName:    name,
			QueueName:      name,
			QueueURL:       url,
			BatchSize:      10,
			WaitTime:       100 * time.Millisecond,
			HandlerTimeout: 2 * time.Second,
			StopGrace:      2 * time.Second,
		}
	}

	p.consumers = []*runtime.Consumer{
		runtime.NewConsumer(client, paymentSvc, runtime.NewBoundedStore(100), newOpts("payment-service", queues.Payments), log),
		runtime.NewConsumer(client, p.inventory, runtime.NewBoundedStore(100), newOpts("inventory-service", queues.Inventory), log),
		runtime.NewConsumer(client, p.notifications, runtime.NewBoundedStore(100), newOpts("notification-service", queues.Notifications), log),
	}

	ctx, cancel := context.WithCancel(context.Background())
	for _, c := range p.consumers {
		c.Start(ctx)
	}
	t.Cleanup(func() {
		cancel()
		for _, c := range p.consumers {
			c.Stop()
		}
	})

	return p
}

func notificationTypes(history []notification.SentNotification) []models.NotificationType {
	types := make([]models.NotificationType, 0, len(history))
	for _, n := range history {
		types = append(types, n.NotificationType)
	}
	return types
}

func TestHappyPathOrderToNotifications(t *testing.T) {
	p := startPipeline(t,
		config.PaymentConfig{FailureRate: 0},
		[]config.StockSeed{{ProductID: "PROD-1", SKU: "SKU-1", Available: 10}},
	)

	created, err := p.orders.CreateOrder(context.Background(), order.CreateOrderRequest{
		CustomerID:    "CUST-100",
		CustomerEmail: "customer@example.com",
		Items: []models.OrderItem{
			{ProductID: "PROD-1", SKU: "SKU-1", Quantity: 3, UnitPrice: 999.99},
		},
		Currency:        "USD",
		ShippingAddress: models.Address{Street: "1 Main St", City: "Springfield"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2999.97, created.TotalAmount)

	// Payment clears, stock is reserved, both notifications arrive.
	require.Eventually(t, func() bool {
		return len(p.notifications.History()) == 2
	}, 10*time.Second, 50*time.Millisecond)

	types := notificationTypes(p.notifications.History())
	assert.Contains(t, types, models.NotificationOrderConfirmation)
	assert.Contains(t, types, models.NotificationPaymentReceived)

	reservation, ok := p.inventory.ReservationForOrder(created.OrderID)
	require.True(t, ok)
	require.Len(t, reservation.Items, 1)
	assert.Equal(t, 3, reservation.Items[0].Quantity)

	stock := p.inventory.Stock()
	require.Len(t, stock, 1)
	assert.Equal(t, 3, stock[0].Reserved)
}

func TestDeclinedPaymentCancelsDownstream(t *testing.T) {
	p := startPipeline(t,
		config.PaymentConfig{FailureRate: 1.0},
		[]config.StockSeed{{ProductID: "PROD-1", Available: 10}},
	)

	created, err := p.orders.CreateOrder(context.Background(), order.CreateOrderRequest{
		CustomerID:    "CUST-200",
		CustomerEmail: "declined@example.com",
		Items: []models.OrderItem{
			{ProductID: "PROD-1", Quantity: 1, UnitPrice: 49.99},
		},
		ShippingAddress: models.Address{Street: "2 Oak Ave", City: "Shelbyville"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(p.notifications.History()) == 2
	}, 10*time.Second, 50*time.Millisecond)

	types := notificationTypes(p.notifications.History())
	assert.Contains(t, types, models.NotificationOrderConfirmation)
	assert.Contains(t, types, models.NotificationPaymentFailed)

	// No reservation was ever requested.
	_, ok := p.inventory.ReservationForOrder(created.OrderID)
	assert.False(t, ok)
	assert.Equal(t, 0, p.inventory.Stock()[0].Reserved)
}

func TestInsufficientStockCancelsOrder(t *testing.T) {
	p := startPipeline(t,
		config.PaymentConfig{FailureRate: 0},
		[]config.StockSeed{{ProductID: "PROD-1", Available: 2}},
	)

	created, err := p.orders.CreateOrder(context.Background(), order.CreateOrderRequest{
		CustomerID:    "CUST-300",
		CustomerEmail: "shortage@example.com",
		Items: []models.OrderItem{
			{ProductID: "PROD-1", Quantity: 5, UnitPrice: 12.50},
		},
		ShippingAddress: models.Address{Street: "3 Elm St", City: "Ogdenville"},
	})
	require.NoError(t, err)

	// Confirmation, payment received, then the cancellation.
	require.Eventually(t, func() bool {
		return len(p.notifications.History()) == 3
	}, 10*time.Second, 50*time.Millisecond)

	types := notificationTypes(p.notifications.History())
	assert.Contains(t, types, models.NotificationOrderConfirmation)
	assert.Contains(t, types, models.NotificationPaymentReceived)
	assert.Contains(t, types, models.NotificationOrderCancelled)

	_, ok := p.inventory.ReservationForOrder(created.OrderID)
	assert.False(t, ok)
}
