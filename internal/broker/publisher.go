package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"orderflow/internal/constants"
	"orderflow/internal/logger"
	"orderflow/pkg/metrics"
	"orderflow/pkg/models"
	"orderflow/pkg/retry"
	"orderflow/pkg/tracing"
)

// Publisher serializes envelopes and sends them with event-type, correlation
// and trace attributes. Transient send failures are retried; the final error
// propagates to the caller.
type Publisher struct {
	client      Client
	logger      logger.Logger
	serviceName string
	policy      retry.Policy
}

func NewPublisher(client Client, serviceName string, log logger.Logger) *Publisher {
	return &Publisher{
		client:      client,
		logger:      log,
		serviceName: serviceName,
		policy:      retry.DefaultPolicy(),
	}
}

func (p *Publisher) Publish(ctx context.Context, queueURL string, env models.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	attrs := map[string]string{
		constants.AttrEventType:     string(env.Type),
		constants.AttrCorrelationID: env.CorrelationID,
	}
	tracing.InjectAttributes(ctx, attrs)

	err = retry.Retry(ctx, p.policy, func() error {
		_, sendErr := p.client.Send(ctx, queueURL, string(body), attrs)
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", env.Type, err)
	}

	metrics.IncEventPublished(p.serviceName, queueURL, string(env.Type))
	p.logger.DebugwCtx(ctx, "Event published",
		"event_type", env.Type,
		"event_id", env.EventID,
		"queue_url", queueURL,
	)
	return nil
}
