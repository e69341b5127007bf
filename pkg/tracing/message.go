package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// attributeCarrier adapts broker message attributes to the otel propagator.
type attributeCarrier map[string]string

func (c attributeCarrier) Get(key string) string {
	return c[key]
}

func (c attributeCarrier) Set(key, value string) {
	c[key] = value
}

func (c attributeCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectAttributes writes the active trace context into message attributes
// so consumers can reconstruct the producer's span as a parent.
func InjectAttributes(ctx context.Context, attrs map[string]string) {
	propagator := otel.GetTextMapPropagator()
	if propagator == nil {
		return
	}
	propagator.Inject(ctx, attributeCarrier(attrs))
}

func ExtractAttributes(ctx context.Context, attrs map[string]string) context.Context {
	propagator := otel.GetTextMapPropagator()
	if propagator == nil {
		return ctx
	}
	return propagator.Extract(ctx, attributeCarrier(attrs))
}

func StartSpanFromMessage(ctx context.Context, operationName string, attrs map[string]string) (context.Context, trace.Span) {
	ctx = ExtractAttributes(ctx, attrs)

	tracer := GetTracer("orderflow-broker")
	return tracer.Start(ctx, operationName)
}
