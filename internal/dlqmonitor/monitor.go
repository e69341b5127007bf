package dlqmonitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"orderflow/internal/broker"
	"orderflow/internal/constants"
	"orderflow/internal/logger"
	apperrors "orderflow/pkg/errors"
	"orderflow/pkg/metrics"
	"orderflow/pkg/models"
)

// Monitor long-polls every dead-letter queue, records what it sees and
// raises structured alerts. It never deletes from a DLQ on its own;
// messages leave only through an operator-driven replay.
type Monitor struct {
	client   broker.Client
	dlqs     []broker.DLQRef
	logger   logger.Logger
	waitTime time.Duration
	now      func() time.Time

	mu      sync.Mutex
	records map[string]models.FailedMessage
}

func NewMonitor(client broker.Client, dlqs []broker.DLQRef, waitTime time.Duration, log logger.Logger) *Monitor {
	if waitTime <= 0 {
		waitTime = constants.DefaultWaitTime
	}
	return &Monitor{
		client:   client,
		dlqs:     dlqs,
		logger:   log,
		waitTime: waitTime,
		now:      time.Now,
		records:  make(map[string]models.FailedMessage),
	}
}

// Run polls all DLQs until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, dlq := range m.dlqs {
		g.Go(func() error {
			m.pollLoop(ctx, dlq)
			return nil
		})
	}
	return g.Wait()
}

func (m *Monitor) pollLoop(ctx context.Context, dlq broker.DLQRef) {
	m.logger.Infow("dlq monitor polling", "queue", dlq.Name)

	for {
		if ctx.Err() != nil {
			return
		}

		messages, err := m.client.Receive(ctx, dlq.URL, broker.ReceiveOptions{
			MaxMessages: constants.DefaultBatchSize,
			WaitTime:    m.waitTime,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Errorw("dlq receive failed", "queue", dlq.Name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range messages {
			m.observe(dlq, msg)
		}
	}
}

// Observe records one DLQ message. Re-observing a known message id only
// refreshes its receipt handle and receive count.
func (m *Monitor) observe(dlq broker.DLQRef, msg broker.Message) {
	record := m.classify(dlq, msg)

	m.mu.Lock()
	_, known := m.records[msg.MessageID]
	m.records[msg.MessageID] = record
	m.mu.Unlock()

	if known {
		return
	}

	metrics.DLQMessagesObservedTotal.WithLabelValues(dlq.Name, record.EventType).Inc()
	m.logger.Warnw("message dead-lettered",
		"queue", dlq.Name,
		"message_id", msg.MessageID,
		"event_type", record.EventType,
		"correlation_id", record.CorrelationID,
		"receive_count", msg.ReceiveCount,
		"sent_at", msg.SentAt,
		"first_received_at", msg.FirstReceivedAt)
}

func (m *Monitor) classify(dlq broker.DLQRef, msg broker.Message) models.FailedMessage {
	record := models.FailedMessage{
		MessageID:       msg.MessageID,
		ReceiptHandle:   msg.ReceiptHandle,
		QueueName:       dlq.Name,
		Body:            msg.Body,
		ReceiveCount:    msg.ReceiveCount,
		SentAt:          msg.SentAt,
		FirstReceivedAt: msg.FirstReceivedAt,
		EventType:       models.EventTypeInvalid,
		RecordedAt:      m.now().UTC(),
	}

	var env models.Envelope
	if err := json.Unmarshal([]byte(msg.Body), &env); err == nil && env.Type != "" {
		record.EventType = string(env.Type)
		record.CorrelationID = env.CorrelationID
	} else if et, ok := msg.Attributes[constants.AttrEventType]; ok && et != "" {
		record.EventType = et
		record.CorrelationID = msg.Attributes[constants.AttrCorrelationID]
	}

	return record
}

// Messages returns recorded DLQ messages, newest first, optionally
// filtered by queue name.
func (m *Monitor) Messages(queueName string) []models.FailedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.FailedMessage, 0, len(m.records))
	for _, r := range m.records {
		if queueName != "" && r.QueueName != queueName {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	return out
}

// QueueSummary aggregates recorded messages for one DLQ.
type QueueSummary struct {
	QueueName    string         `json:"queueName"`
	Total        int            `json:"total"`
	ByEventType  map[string]int `json:"byEventType"`
	OldestSentAt *time.Time     `json:"oldestSentAt,omitempty"`
}

// Summary reports per-queue counts broken down by event type. Queues with
// no recorded messages still appear with zero counts.
func (m *Monitor) Summary() []QueueSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	byQueue := make(map[string]*QueueSummary, len(m.dlqs))
	order := make([]string, 0, len(m.dlqs))
	for _, dlq := range m.dlqs {
		byQueue[dlq.Name] = &QueueSummary{QueueName: dlq.Name, ByEventType: make(map[string]int)}
		order = append(order, dlq.Name)
	}

	for _, r := range m.records {
		s, ok := byQueue[r.QueueName]
		if !ok {
			s = &QueueSummary{QueueName: r.QueueName, ByEventType: make(map[string]int)}
			byQueue[r.QueueName] = s
			order = append(order, r.QueueName)
		}
		s.Total++
		s.ByEventType[r.EventType]++
		if !r.SentAt.IsZero() && (s.OldestSentAt == nil || r.SentAt.Before(*s.OldestSentAt)) {
			sentAt := r.SentAt
			s.OldestSentAt = &sentAt
		}
	}

	out := make([]QueueSummary, 0, len(order))
	for _, name := range order {
		out = append(out, *byQueue[name])
	}
	return out
}

// Replay re-publishes a recorded message body verbatim to the target queue.
// The original stays on the DLQ and the record stays in memory; the queue is
// an operator's inspection surface, and consumer idempotency absorbs the
// duplicate if the original is ever redriven again.
func (m *Monitor) Replay(ctx context.Context, messageID, targetQueueURL string) error {
	m.mu.Lock()
	record, ok := m.records[messageID]
	m.mu.Unlock()
	if !ok {
		metrics.DLQReplaysTotal.WithLabelValues("not_found").Inc()
		return apperrors.ErrNotFound.WithDetail("message_id", messageID)
	}

	attrs := map[string]string{}
	if record.EventType != models.EventTypeInvalid {
		attrs[constants.AttrEventType] = record.EventType
	}
	if record.CorrelationID != "" {
		attrs[constants.AttrCorrelationID] = record.CorrelationID
	}

	if _, err := m.client.Send(ctx, targetQueueURL, record.Body, attrs); err != nil {
		metrics.DLQReplaysTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to replay message %s: %w", messageID, err)
	}

	metrics.DLQReplaysTotal.WithLabelValues("success").Inc()
	m.logger.Infow("dlq message replayed",
		"message_id", messageID,
		"source_queue", record.QueueName,
		"target_queue", targetQueueURL,
		"event_type", record.EventType,
		"correlation_id", record.CorrelationID)
	return nil
}
