package bootstrap

import (
	"context"
	"fmt"

	"orderflow/internal/broker"
	"orderflow/internal/config"
	"orderflow/internal/logger"
)

// Base holds what every service shares: config, logger, the broker client
// with a declared queue topology, and a publisher bound to it.
type Base struct {
	Config    *config.Config
	Logger    logger.Logger
	Broker    broker.Client
	Publisher *broker.Publisher
	Queues    broker.QueueURLs
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitBroker connects the configured broker, declares the full queue
// topology and wires a publisher for the named service.
func (b *Base) InitBroker(ctx context.Context, serviceName string) error {
	client, err := broker.NewClient(ctx, b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create broker client: %w", err)
	}

	queues, err := broker.EnsureTopology(ctx, client, b.Config.Queues, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to ensure queue topology: %w", err)
	}

	b.Broker = client
	b.Queues = queues
	b.Publisher = broker.NewPublisher(client, serviceName, b.Logger)
	return nil
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Infow("Shutting down application")

	var errs []error
	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Infow("Application exited successfully")
	return nil
}
