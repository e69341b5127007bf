package runtime

import (
	"orderflow/pkg/models"
)

// EnvelopeHandler provides the envelope-based parts of Handler. Stages embed
// it and supply IdempotencyKey and ProcessMessage.
type EnvelopeHandler struct{}

func (EnvelopeHandler) ParseMessage(body string) (models.Envelope, error) {
	return models.ParseEnvelope(body)
}

func (EnvelopeHandler) CorrelationID(env models.Envelope) string {
	return env.CorrelationID
}

// EventIDKey is the default idempotency key: the unique event id.
type EventIDKey struct{}

func (EventIDKey) IdempotencyKey(env models.Envelope) string {
	return env.EventID
}
