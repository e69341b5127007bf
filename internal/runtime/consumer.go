package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"orderflow/internal/broker"
	"orderflow/internal/logger"
	pkgerrors "orderflow/pkg/errors"
	"orderflow/pkg/logging"
	"orderflow/pkg/metrics"
	"orderflow/pkg/models"
	"orderflow/pkg/retry"
	"orderflow/pkg/tracing"
)

// Handler is the per-stage contract the consumer runtime drives. A nil
// error from ProcessMessage acknowledges the message; business failures
// that must not be retried are handled inside the stage and reported as nil.
type Handler interface {
	ParseMessage(body string) (models.Envelope, error)
	CorrelationID(env models.Envelope) string
	IdempotencyKey(env models.Envelope) string
	ProcessMessage(ctx context.Context, env models.Envelope) error
}

type Options struct {
	ServiceName    string
	QueueName      string
	QueueURL       string
	BatchSize      int
	WaitTime       time.Duration
	HandlerTimeout time.Duration
	StopGrace      time.Duration
}

const (
	statusSuccess    = "success"
	statusDuplicate  = "duplicate"
	statusError      = "error"
	statusTimeout    = "timeout"
	statusParseError = "parse_error"
)

// Consumer long-polls one queue and fans each received batch out to the
// handler, one goroutine per message. Messages are deleted only on success
// or duplicate; everything else is left to the broker's redelivery and
// redrive policy.
type Consumer struct {
	client  broker.Client
	handler Handler
	store   IdempotencyStore
	logger  logger.Logger
	opts    Options

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewConsumer(client broker.Client, handler Handler, store IdempotencyStore, opts Options, log logger.Logger) *Consumer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.WaitTime <= 0 {
		opts.WaitTime = 20 * time.Second
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 25 * time.Second
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 30 * time.Second
	}

	return &Consumer{
		client:  client,
		handler: handler,
		store:   store,
		logger:  log,
		opts:    opts,
	}
}

// Start begins the poll loop. Calling Start while the consumer is already
// running is a no-op.
func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.logger.Warnw("Consumer already running, ignoring Start",
			"queue", c.opts.QueueName,
		)
		return
	}

	// A previous Stop may have given up after the grace period with the
	// old loop still draining. Starting then would run two loops against
	// the same queue.
	if c.done != nil {
		select {
		case <-c.done:
		default:
			c.logger.Warnw("Previous poll loop still draining, ignoring Start",
				"queue", c.opts.QueueName,
			)
			return
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.pollLoop(loopCtx)
}

// Stop signals the poll loop to exit after its current iteration and waits
// up to the grace period. In-flight handlers are not preempted beyond the
// cancellation of their context.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-time.After(c.opts.StopGrace):
		c.logger.Warnw("Consumer did not drain within grace period",
			"queue", c.opts.QueueName,
			"grace", c.opts.StopGrace,
		)
	}

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// Run starts the consumer and blocks until the context is cancelled, then
// performs a graceful stop.
func (c *Consumer) Run(ctx context.Context) error {
	c.Start(ctx)
	<-ctx.Done()
	c.Stop()
	return ctx.Err()
}

func (c *Consumer) pollLoop(ctx context.Context) {
	defer close(c.done)

	loopCtx := logging.WithServiceName(ctx, c.opts.ServiceName)
	c.logger.InfowCtx(loopCtx, "Started consuming",
		"queue", c.opts.QueueName,
		"batch_size", c.opts.BatchSize,
	)

	pollBackoff := retry.PollBackoff(time.Second, 30*time.Second)

	for ctx.Err() == nil {
		msgs, err := c.client.Receive(ctx, c.opts.QueueURL, broker.ReceiveOptions{
			MaxMessages: c.opts.BatchSize,
			WaitTime:    c.opts.WaitTime,
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			metrics.PollErrorsTotal.WithLabelValues(c.opts.ServiceName, c.opts.QueueName).Inc()
			delay := pollBackoff.NextBackOff()
			c.logger.ErrorwCtx(loopCtx, "Error receiving messages",
				"error", err,
				"queue", c.opts.QueueName,
				"retry_in", delay,
			)
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
			continue
		}
		pollBackoff.Reset()

		if len(msgs) == 0 {
			continue
		}

		// Fan out: failures are isolated per message; the batch is joined
		// before the next poll.
		var wg sync.WaitGroup
		for _, msg := range msgs {
			wg.Add(1)
			go func(msg broker.Message) {
				defer wg.Done()
				c.processMessage(ctx, msg)
			}(msg)
		}
		wg.Wait()
	}

	c.logger.InfowCtx(loopCtx, "Stopped consuming",
		"queue", c.opts.QueueName,
	)
}

func (c *Consumer) processMessage(ctx context.Context, msg broker.Message) {
	msgCtx := logging.WithServiceName(ctx, c.opts.ServiceName)
	msgCtx = logging.WithMessageID(msgCtx, msg.MessageID)

	env, err := c.handler.ParseMessage(msg.Body)
	if err != nil {
		metrics.IncMessageConsumed(c.opts.ServiceName, c.opts.QueueName, statusParseError)
		c.logger.ErrorwCtx(msgCtx, "Failed to parse message, leaving for redelivery",
			"error", err,
			"queue", c.opts.QueueName,
			"receive_count", msg.ReceiveCount,
		)
		return
	}

	msgCtx, span := tracing.StartSpanFromMessage(msgCtx, "queue.consume", msg.Attributes)
	defer span.End()

	if correlationID := c.handler.CorrelationID(env); correlationID != "" {
		msgCtx = logging.WithCorrelationID(msgCtx, correlationID)
	}

	key := c.handler.IdempotencyKey(env)
	if key != "" {
		seen, seenErr := c.store.Seen(msgCtx, key)
		if seenErr != nil {
			// Store unavailable: fall through and process. At-least-once
			// delivery already requires handlers to tolerate replays.
			c.logger.WarnwCtx(msgCtx, "Idempotency check failed, processing anyway",
				"error", seenErr,
				"idempotency_key", key,
			)
		} else if seen {
			c.acknowledge(msgCtx, msg, statusDuplicate)
			c.logger.InfowCtx(msgCtx, "Duplicate event, skipping handler",
				"idempotency_key", key,
				"event_type", env.Type,
			)
			return
		}
	}

	start := time.Now()
	err = c.invokeHandler(msgCtx, env)
	duration := time.Since(start)

	if err != nil {
		status := statusError
		if errors.Is(err, context.DeadlineExceeded) {
			status = statusTimeout
		}
		metrics.IncMessageConsumed(c.opts.ServiceName, c.opts.QueueName, status)
		metrics.ObserveHandlerDuration(c.opts.ServiceName, c.opts.QueueName, status, duration)
		c.logger.ErrorwCtx(msgCtx, "Handler failed, leaving message for redelivery",
			"error", err,
			"event_type", env.Type,
			"receive_count", msg.ReceiveCount,
			"status", status,
		)
		return
	}

	c.acknowledge(msgCtx, msg, statusSuccess)
	metrics.ObserveHandlerDuration(c.opts.ServiceName, c.opts.QueueName, statusSuccess, duration)

	if key != "" {
		if markErr := c.store.Mark(msgCtx, key); markErr != nil {
			c.logger.WarnwCtx(msgCtx, "Failed to record idempotency key",
				"error", markErr,
				"idempotency_key", key,
			)
		}
		metrics.SetIdempotencyStoreSize(c.opts.ServiceName, c.store.Len())
	}
}

// invokeHandler races the handler against the per-message timeout. On
// timeout the runtime stops waiting and reports failure; the handler
// goroutine keeps its cancelled context and is expected to unwind at its
// next blocking call.
func (c *Consumer) invokeHandler(ctx context.Context, env models.Envelope) error {
	handlerCtx, cancel := context.WithTimeout(ctx, c.opts.HandlerTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- pkgerrors.RecoverPanic(r)
			}
		}()
		result <- c.handler.ProcessMessage(handlerCtx, env)
	}()

	select {
	case err := <-result:
		return err
	case <-handlerCtx.Done():
		return handlerCtx.Err()
	}
}

func (c *Consumer) acknowledge(ctx context.Context, msg broker.Message, status string) {
	if err := c.client.Delete(ctx, c.opts.QueueURL, msg.ReceiptHandle); err != nil {
		// The message will be redelivered; the idempotency store suppresses
		// the second handler run.
		c.logger.ErrorwCtx(ctx, "Failed to delete message",
			"error", err,
			"queue", c.opts.QueueName,
		)
		return
	}
	metrics.IncMessageConsumed(c.opts.ServiceName, c.opts.QueueName, status)
}
