package dlqmonitor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/broker"
	"orderflow/internal/constants"
	"orderflow/internal/logger"
	"orderflow/pkg/models"
)

func setupDLQ(t *testing.T) (*broker.InMemoryClient, string, string) {
	t.Helper()
	client := broker.NewInMemoryClient()

	dlqURL, err := client.CreateQueue(context.Background(), "orders-dlq", broker.QueueAttributes{})
	require.NoError(t, err)
	mainURL, err := client.CreateQueue(context.Background(), "orders", broker.QueueAttributes{})
	require.NoError(t, err)
	return client, dlqURL, mainURL
}

func deadLetter(t *testing.T, client *broker.InMemoryClient, dlqURL string, env models.Envelope) string {
	t.Helper()
	body, err := json.Marshal(env)
	require.NoError(t, err)
	id, err := client.Send(context.Background(), dlqURL, string(body), map[string]string{
		constants.AttrEventType:     string(env.Type),
		constants.AttrCorrelationID: env.CorrelationID,
	})
	require.NoError(t, err)
	return id
}

func receiveAndObserve(t *testing.T, m *Monitor, client *broker.InMemoryClient, dlqURL string) {
	t.Helper()
	messages, err := client.Receive(context.Background(), dlqURL, broker.ReceiveOptions{MaxMessages: 10})
	require.NoError(t, err)
	for _, msg := range messages {
		m.observe(broker.DLQRef{Name: "orders-dlq", URL: dlqURL}, msg)
	}
}

func TestObserveRecordsAndClassifies(t *testing.T) {
	client, dlqURL, _ := setupDLQ(t)
	m := NewMonitor(client, []broker.DLQRef{{Name: "orders-dlq", URL: dlqURL}}, time.Second, logger.NopLogger())

	env, err := models.NewEnvelope(models.EventTypeOrderCreated, "corr-1", models.OrderCreatedPayload{})
	require.NoError(t, err)
	msgID := deadLetter(t, client, dlqURL, env)

	receiveAndObserve(t, m, client, dlqURL)

	records := m.Messages("")
	require.Len(t, records, 1)
	assert.Equal(t, msgID, records[0].MessageID)
	assert.Equal(t, "ORDER_CREATED", records[0].EventType)
	assert.Equal(t, "corr-1", records[0].CorrelationID)
	assert.Equal(t, "orders-dlq", records[0].QueueName)
	assert.Equal(t, 1, records[0].ReceiveCount)
}

func TestObserveInvalidBody(t *testing.T) {
	client, dlqURL, _ := setupDLQ(t)
	m := NewMonitor(client, []broker.DLQRef{{Name: "orders-dlq", URL: dlqURL}}, time.Second, logger.NopLogger())

	_, err := client.Send(context.Background(), dlqURL, "not json at all", nil)
	require.NoError(t, err)

	receiveAndObserve(t, m, client, dlqURL)

	records := m.Messages("")
	require.Len(t, records, 1)
	assert.Equal(t, models.EventTypeInvalid, records[0].EventType)
}

func TestObserveReobservationDoesNotDoubleCount(t *testing.T) {
	client, dlqURL, _ := setupDLQ(t)
	m := NewMonitor(client, []broker.DLQRef{{Name: "orders-dlq", URL: dlqURL}}, time.Second, logger.NopLogger())

	env, err := models.NewEnvelope(models.EventTypeOrderCreated, "corr-1", models.OrderCreatedPayload{})
	require.NoError(t, err)
	deadLetter(t, client, dlqURL, env)

	receiveAndObserve(t, m, client, dlqURL)
	receiveAndObserve(t, m, client, dlqURL)

	assert.Len(t, m.Messages(""), 1)
}

func TestSummaryGroupsByQueueAndType(t *testing.T) {
	client, dlqURL, _ := setupDLQ(t)
	m := NewMonitor(client, []broker.DLQRef{{Name: "orders-dlq", URL: dlqURL}}, time.Second, logger.NopLogger())

	for i := 0; i < 2; i++ {
		env, err := models.NewEnvelope(models.EventTypeOrderCreated, "corr", models.OrderCreatedPayload{})
		require.NoError(t, err)
		deadLetter(t, client, dlqURL, env)
	}
	_, err := client.Send(context.Background(), dlqURL, "garbage", nil)
	require.NoError(t, err)

	receiveAndObserve(t, m, client, dlqURL)

	summary := m.Summary()
	require.Len(t, summary, 1)
	assert.Equal(t, "orders-dlq", summary[0].QueueName)
	assert.Equal(t, 3, summary[0].Total)
	assert.Equal(t, 2, summary[0].ByEventType["ORDER_CREATED"])
	assert.Equal(t, 1, summary[0].ByEventType[models.EventTypeInvalid])
	assert.NotNil(t, summary[0].OldestSentAt)
}

func TestSummaryIncludesEmptyQueues(t *testing.T) {
	client, dlqURL, _ := setupDLQ(t)
	m := NewMonitor(client, []broker.DLQRef{{Name: "orders-dlq", URL: dlqURL}}, time.Second, logger.NopLogger())

	summary := m.Summary()
	require.Len(t, summary, 1)
	assert.Equal(t, 0, summary[0].Total)
}

func TestReplayResendsToTarget(t *testing.T) {
	client, dlqURL, mainURL := setupDLQ(t)
	m := NewMonitor(client, []broker.DLQRef{{Name: "orders-dlq", URL: dlqURL}}, time.Second, logger.NopLogger())

	env, err := models.NewEnvelope(models.EventTypePaymentRequested, "corr-replay", models.PaymentRequestedPayload{OrderID: "ORD-1"})
	require.NoError(t, err)
	msgID := deadLetter(t, client, dlqURL, env)

	receiveAndObserve(t, m, client, dlqURL)
	require.NoError(t, m.Replay(context.Background(), msgID, mainURL))

	replayed, err := client.Receive(context.Background(), mainURL, broker.ReceiveOptions{MaxMessages: 1})
	require.NoError(t, err)
	require.Len(t, replayed, 1)
	assert.Equal(t, "PAYMENT_REQUESTED", replayed[0].Attributes[constants.AttrEventType])
	assert.Equal(t, "corr-replay", replayed[0].Attributes[constants.AttrCorrelationID])

	var replayedEnv models.Envelope
	replayedEnv, err = models.ParseEnvelope(replayed[0].Body)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, replayedEnv.EventID, "replay preserves the original event id")

	// The record stays for operator inspection; replaying again works.
	require.NoError(t, m.Replay(context.Background(), msgID, mainURL))
	assert.Len(t, m.Messages(""), 1)
}

func TestReplayUnknownMessage(t *testing.T) {
	client, dlqURL, mainURL := setupDLQ(t)
	m := NewMonitor(client, []broker.DLQRef{{Name: "orders-dlq", URL: dlqURL}}, time.Second, logger.NopLogger())

	assert.Error(t, m.Replay(context.Background(), "missing-id", mainURL))
}
