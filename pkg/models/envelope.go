package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const SchemaVersion = "1.0"

type EventType string

const (
	EventTypeOrderCreated              EventType = "ORDER_CREATED"
	EventTypePaymentRequested          EventType = "PAYMENT_REQUESTED"
	EventTypePaymentProcessed          EventType = "PAYMENT_PROCESSED"
	EventTypePaymentFailed             EventType = "PAYMENT_FAILED"
	EventTypeInventoryReserveRequested EventType = "INVENTORY_RESERVE_REQUESTED"
	EventTypeNotificationRequested     EventType = "NOTIFICATION_REQUESTED"
)

// ValidationError reports the envelope field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Envelope is the versioned wire shape shared by every producer and consumer
// in the pipeline. CorrelationID is minted once at order creation and carried
// unmodified on every downstream event.
type Envelope struct {
	EventID       string          `json:"eventId"`
	CorrelationID string          `json:"correlationId"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schemaVersion"`
	Type          EventType       `json:"type"`
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType EventType, correlationID string, payload interface{}) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return Envelope{
		EventID:       uuid.NewString(),
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Type:          eventType,
		Payload:       body,
	}, nil
}

func (e Envelope) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.EventID)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

func ParseEnvelope(body string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if err := ValidateEnvelope(&env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func ValidateEnvelope(env *Envelope) error {
	if env == nil {
		return &ValidationError{Field: "envelope", Message: "envelope cannot be nil"}
	}
	if env.EventID == "" {
		return &ValidationError{Field: "eventId", Message: "event ID is required"}
	}
	if env.CorrelationID == "" {
		return &ValidationError{Field: "correlationId", Message: "correlation ID is required"}
	}
	if env.Type == "" {
		return &ValidationError{Field: "type", Message: "event type is required"}
	}
	if env.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "event timestamp is required"}
	}
	return nil
}
