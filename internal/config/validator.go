package config

import (
	"fmt"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateQueues(cfg.Queues); err != nil {
		errors = append(errors, err)
	}

	if err := validateRuntime(cfg.Runtime); err != nil {
		errors = append(errors, err)
	}

	if err := validatePayment(cfg.Payment); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port != 0 && (cfg.Port < 1 || cfg.Port > 65535) {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}
	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "memory":
		return nil
	case "sqs":
		if cfg.SQS.Region == "" {
			return &ValidationError{
				Field:   "broker.sqs.region",
				Message: "region is required for the sqs broker",
			}
		}
		return nil
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unsupported broker type '%s' (expected memory or sqs)", cfg.Type),
		}
	}
}

func validateQueues(cfg QueuesConfig) error {
	specs := map[string]QueueSpec{
		"queues.orders":        cfg.Orders,
		"queues.payments":      cfg.Payments,
		"queues.inventory":     cfg.Inventory,
		"queues.notifications": cfg.Notifications,
	}

	for field, spec := range specs {
		if spec.Name == "" {
			return &ValidationError{
				Field:   field + ".name",
				Message: "queue name is required",
			}
		}
		if spec.VisibilityTimeoutSeconds <= 0 {
			return &ValidationError{
				Field:   field + ".visibility_timeout_seconds",
				Message: "visibility timeout must be positive",
			}
		}
		if spec.MaxReceiveCount <= 0 {
			return &ValidationError{
				Field:   field + ".max_receive_count",
				Message: "max receive count must be positive",
			}
		}
	}

	return nil
}

func validateRuntime(cfg RuntimeConfig) error {
	if cfg.BatchSize <= 0 {
		return &ValidationError{
			Field:   "runtime.batch_size",
			Message: "batch size must be positive",
		}
	}
	if cfg.HandlerTimeout <= 0 {
		return &ValidationError{
			Field:   "runtime.handler_timeout",
			Message: "handler timeout must be positive",
		}
	}
	if cfg.IdempotencyCapacity <= 0 {
		return &ValidationError{
			Field:   "runtime.idempotency_capacity",
			Message: "idempotency capacity must be positive",
		}
	}
	switch cfg.IdempotencyStore {
	case "", "memory", "redis":
	default:
		return &ValidationError{
			Field:   "runtime.idempotency_store",
			Message: fmt.Sprintf("unsupported store '%s' (expected memory or redis)", cfg.IdempotencyStore),
		}
	}
	return nil
}

func validatePayment(cfg PaymentConfig) error {
	if cfg.FailureRate < 0 || cfg.FailureRate > 1 {
		return &ValidationError{
			Field:   "payment.failure_rate",
			Message: fmt.Sprintf("failure rate must be within [0,1], got %v", cfg.FailureRate),
		}
	}
	if cfg.MaxLatency < cfg.MinLatency {
		return &ValidationError{
			Field:   "payment.max_latency",
			Message: "max latency must not be below min latency",
		}
	}
	return nil
}
