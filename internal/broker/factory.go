package broker

import (
	"context"
	"fmt"

	"orderflow/internal/config"
	"orderflow/internal/logger"
)

func NewClient(ctx context.Context, cfg config.BrokerConfig, log logger.Logger) (Client, error) {
	switch cfg.Type {
	case "", "memory":
		log.Infow("Using in-memory broker")
		return NewInMemoryClient(), nil
	case "sqs":
		log.Infow("Using SQS broker",
			"region", cfg.SQS.Region,
			"custom_endpoint", cfg.SQS.Endpoint != "",
		)
		return NewSQSClient(ctx, cfg.SQS)
	default:
		return nil, fmt.Errorf("unsupported broker type: %s", cfg.Type)
	}
}
