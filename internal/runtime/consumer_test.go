package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/broker"
	"orderflow/internal/logger"
	"orderflow/pkg/models"
)

type countingHandler struct {
	EnvelopeHandler
	EventIDKey

	mu      sync.Mutex
	calls   int
	process func(ctx context.Context, env models.Envelope) error
}

func (h *countingHandler) ProcessMessage(ctx context.Context, env models.Envelope) error {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if h.process != nil {
		return h.process(ctx, env)
	}
	return nil
}

func (h *countingHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func testOptions(queueURL string) Options {
	return Options{
		ServiceName:    "test-service",
		QueueName:      "test-queue",
		QueueURL:       queueURL,
		BatchSize:      10,
		WaitTime:       100 * time.Millisecond,
		HandlerTimeout: time.Second,
		StopGrace:      2 * time.Second,
	}
}

func newTestQueue(t *testing.T, visibility time.Duration) (*broker.InMemoryClient, string) {
	t.Helper()
	client := broker.NewInMemoryClient()
	url, err := client.CreateQueue(context.Background(), "test-queue", broker.QueueAttributes{VisibilityTimeout: visibility})
	require.NoError(t, err)
	return client, url
}

func sendEnvelope(t *testing.T, client *broker.InMemoryClient, url string, env models.Envelope) {
	t.Helper()
	body, err := json.Marshal(env)
	require.NoError(t, err)
	_, err = client.Send(context.Background(), url, string(body), nil)
	require.NoError(t, err)
}

func queueDepth(t *testing.T, client *broker.InMemoryClient, url string) int {
	t.Helper()
	msgs, err := client.Receive(context.Background(), url, broker.ReceiveOptions{MaxMessages: 10, VisibilityTimeout: time.Millisecond})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	return len(msgs)
}

func TestConsumerProcessesAndAcks(t *testing.T) {
	client, url := newTestQueue(t, 30*time.Second)
	handler := &countingHandler{}
	store := NewBoundedStore(100)
	consumer := NewConsumer(client, handler, store, testOptions(url), logger.NopLogger())

	env, err := models.NewEnvelope(models.EventTypeOrderCreated, "corr-1", models.OrderCreatedPayload{})
	require.NoError(t, err)
	sendEnvelope(t, client, url, env)

	consumer.Start(context.Background())
	defer consumer.Stop()

	require.Eventually(t, func() bool {
		return handler.callCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Acked on success: nothing left to receive.
	require.Eventually(t, func() bool {
		return queueDepth(t, client, url) == 0
	}, 2*time.Second, 20*time.Millisecond)

	seen, err := store.Seen(context.Background(), env.EventID)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestConsumerSuppressesDuplicateEvents(t *testing.T) {
	client, url := newTestQueue(t, 30*time.Second)
	handler := &countingHandler{}
	// Batch of one so the deliveries are handled sequentially.
	opts := testOptions(url)
	opts.BatchSize = 1
	consumer := NewConsumer(client, handler, NewBoundedStore(100), opts, logger.NopLogger())

	env, err := models.NewEnvelope(models.EventTypeOrderCreated, "corr-1", models.OrderCreatedPayload{})
	require.NoError(t, err)
	// The same event delivered twice, as at-least-once permits.
	sendEnvelope(t, client, url, env)
	sendEnvelope(t, client, url, env)

	consumer.Start(context.Background())
	defer consumer.Stop()

	require.Eventually(t, func() bool {
		return queueDepth(t, client, url) == 0
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, 1, handler.callCount(), "duplicate acked without a second handler run")
}

func TestConsumerLeavesFailedMessageForRedelivery(t *testing.T) {
	client, url := newTestQueue(t, 100*time.Millisecond)
	handler := &countingHandler{
		process: func(ctx context.Context, env models.Envelope) error {
			return errors.New("transient failure")
		},
	}
	consumer := NewConsumer(client, handler, NewBoundedStore(100), testOptions(url), logger.NopLogger())

	env, err := models.NewEnvelope(models.EventTypeOrderCreated, "corr-1", models.OrderCreatedPayload{})
	require.NoError(t, err)
	sendEnvelope(t, client, url, env)

	consumer.Start(context.Background())
	defer consumer.Stop()

	// The message comes back after its visibility timeout and is retried.
	require.Eventually(t, func() bool {
		return handler.callCount() >= 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestConsumerTimesOutSlowHandler(t *testing.T) {
	client, url := newTestQueue(t, 100*time.Millisecond)

	var timedOut sync.Once
	done := make(chan struct{})
	handler := &countingHandler{
		process: func(ctx context.Context, env models.Envelope) error {
			<-ctx.Done()
			timedOut.Do(func() { close(done) })
			return ctx.Err()
		},
	}

	opts := testOptions(url)
	opts.HandlerTimeout = 50 * time.Millisecond
	consumer := NewConsumer(client, handler, NewBoundedStore(100), opts, logger.NopLogger())

	env, err := models.NewEnvelope(models.EventTypeOrderCreated, "corr-1", models.OrderCreatedPayload{})
	require.NoError(t, err)
	sendEnvelope(t, client, url, env)

	consumer.Start(context.Background())
	defer consumer.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler context was never cancelled")
	}
}

func TestConsumerRecoversFromHandlerPanic(t *testing.T) {
	client, url := newTestQueue(t, 100*time.Millisecond)
	handler := &countingHandler{
		process: func(ctx context.Context, env models.Envelope) error {
			panic("handler exploded")
		},
	}
	consumer := NewConsumer(client, handler, NewBoundedStore(100), testOptions(url), logger.NopLogger())

	env, err := models.NewEnvelope(models.EventTypeOrderCreated, "corr-1", models.OrderCreatedPayload{})
	require.NoError(t, err)
	sendEnvelope(t, client, url, env)

	consumer.Start(context.Background())
	defer consumer.Stop()

	// The panic is contained and the message retried like any failure.
	require.Eventually(t, func() bool {
		return handler.callCount() >= 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestConsumerSkipsUnparseableMessages(t *testing.T) {
	client, url := newTestQueue(t, 50*time.Millisecond)
	handler := &countingHandler{}
	consumer := NewConsumer(client, handler, NewBoundedStore(100), testOptions(url), logger.NopLogger())

	_, err := client.Send(context.Background(), url, "not an envelope", nil)
	require.NoError(t, err)

	consumer.Start(context.Background())
	defer consumer.Stop()

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, handler.callCount(), "malformed body never reaches the handler")
}

func TestConsumerStartIsIdempotent(t *testing.T) {
	client, url := newTestQueue(t, 30*time.Second)
	handler := &countingHandler{}
	consumer := NewConsumer(client, handler, NewBoundedStore(100), testOptions(url), logger.NopLogger())

	consumer.Start(context.Background())
	consumer.Start(context.Background())

	env, err := models.NewEnvelope(models.EventTypeOrderCreated, "corr-1", models.OrderCreatedPayload{})
	require.NoError(t, err)
	sendEnvelope(t, client, url, env)

	require.Eventually(t, func() bool {
		return handler.callCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	consumer.Stop()
	consumer.Stop()
}

func TestConsumerStartRefusedWhileOldLoopDrains(t *testing.T) {
	client, url := newTestQueue(t, 30*time.Second)

	gate := make(chan struct{})
	handler := &countingHandler{
		process: func(ctx context.Context, env models.Envelope) error {
			<-gate
			return nil
		},
	}

	// Grace shorter than the handler timeout, so Stop gives up while the
	// old loop is still joining its batch.
	opts := testOptions(url)
	opts.WaitTime = 50 * time.Millisecond
	opts.HandlerTimeout = 400 * time.Millisecond
	opts.StopGrace = 50 * time.Millisecond
	consumer := NewConsumer(client, handler, NewBoundedStore(100), opts, logger.NopLogger())

	first, err := models.NewEnvelope(models.EventTypeOrderCreated, "corr-1", models.OrderCreatedPayload{})
	require.NoError(t, err)
	sendEnvelope(t, client, url, first)

	consumer.Start(context.Background())
	require.Eventually(t, func() bool {
		return handler.callCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	consumer.Stop()

	second, err := models.NewEnvelope(models.EventTypeOrderCreated, "corr-2", models.OrderCreatedPayload{})
	require.NoError(t, err)
	sendEnvelope(t, client, url, second)

	// The old loop has not exited yet; Start must not spawn a second loop
	// on the same queue.
	consumer.Start(context.Background())
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, handler.callCount(), "no loop may run while the old one drains")

	close(gate)

	// Once the old loop has exited, Start succeeds again.
	require.Eventually(t, func() bool {
		consumer.Start(context.Background())
		return handler.callCount() == 2
	}, 3*time.Second, 20*time.Millisecond)
	defer consumer.Stop()
}

func TestConsumerRunStopsOnContextCancel(t *testing.T) {
	client, url := newTestQueue(t, 30*time.Second)
	consumer := NewConsumer(client, &countingHandler{}, NewBoundedStore(100), testOptions(url), logger.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- consumer.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("consumer did not stop after cancellation")
	}
}
