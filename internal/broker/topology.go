package broker

import (
	"context"
	"fmt"
	"time"

	"orderflow/internal/config"
	"orderflow/internal/constants"
	"orderflow/internal/logger"
)

// QueueURLs holds the resolved endpoints of the fixed pipeline topology.
type QueueURLs struct {
	Orders        string
	Payments      string
	Inventory     string
	Notifications string

	OrdersDLQ        string
	PaymentsDLQ      string
	InventoryDLQ     string
	NotificationsDLQ string
}

// DLQRef names one dead-letter queue for the monitor.
type DLQRef struct {
	Name string
	URL  string
}

func (u QueueURLs) DLQs(cfg config.QueuesConfig) []DLQRef {
	return []DLQRef{
		{Name: dlqName(cfg.Prefix, cfg.Orders.Name), URL: u.OrdersDLQ},
		{Name: dlqName(cfg.Prefix, cfg.Payments.Name), URL: u.PaymentsDLQ},
		{Name: dlqName(cfg.Prefix, cfg.Inventory.Name), URL: u.InventoryDLQ},
		{Name: dlqName(cfg.Prefix, cfg.Notifications.Name), URL: u.NotificationsDLQ},
	}
}

// EnsureTopology creates (or re-resolves) every main queue with its paired
// DLQ and redrive policy. Safe to call from every service at startup.
func EnsureTopology(ctx context.Context, client Client, cfg config.QueuesConfig, log logger.Logger) (QueueURLs, error) {
	var urls QueueURLs
	specs := []struct {
		spec    config.QueueSpec
		mainURL *string
		dlqURL  *string
	}{
		{cfg.Orders, &urls.Orders, &urls.OrdersDLQ},
		{cfg.Payments, &urls.Payments, &urls.PaymentsDLQ},
		{cfg.Inventory, &urls.Inventory, &urls.InventoryDLQ},
		{cfg.Notifications, &urls.Notifications, &urls.NotificationsDLQ},
	}

	for _, s := range specs {
		mainURL, dlqURL, err := ensureQueuePair(ctx, client, cfg.Prefix, s.spec)
		if err != nil {
			return QueueURLs{}, err
		}
		*s.mainURL = mainURL
		*s.dlqURL = dlqURL

		log.Infow("Queue provisioned",
			"queue", cfg.Prefix+s.spec.Name,
			"visibility_timeout_seconds", s.spec.VisibilityTimeoutSeconds,
			"max_receive_count", s.spec.MaxReceiveCount,
		)
	}

	return urls, nil
}

func ensureQueuePair(ctx context.Context, client Client, prefix string, spec config.QueueSpec) (string, string, error) {
	visibility := time.Duration(spec.VisibilityTimeoutSeconds) * time.Second

	dlqURL, err := client.CreateQueue(ctx, dlqName(prefix, spec.Name), QueueAttributes{
		VisibilityTimeout: visibility,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to create DLQ for %s: %w", spec.Name, err)
	}

	dlqARN, err := client.QueueARN(ctx, dlqURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve DLQ ARN for %s: %w", spec.Name, err)
	}

	mainURL, err := client.CreateQueue(ctx, prefix+spec.Name, QueueAttributes{
		VisibilityTimeout: visibility,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to create queue %s: %w", spec.Name, err)
	}

	if err := client.ConfigureDeadLetter(ctx, mainURL, dlqARN, spec.MaxReceiveCount); err != nil {
		return "", "", fmt.Errorf("failed to configure redrive for %s: %w", spec.Name, err)
	}

	return mainURL, dlqURL, nil
}

func dlqName(prefix, name string) string {
	return prefix + name + constants.DLQSuffix
}
