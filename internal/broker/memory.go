package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const memPollInterval = 50 * time.Millisecond

// InMemoryClient is a broker for local runs and tests. It models the parts
// of the real broker the pipeline depends on: visibility timeouts, receive
// counts and redrive to a dead-letter queue once the receive limit is
// exceeded.
type InMemoryClient struct {
	mu     sync.Mutex
	queues map[string]*memQueue // keyed by URL
}

type memQueue struct {
	name       string
	url        string
	arn        string
	visibility time.Duration
	redrive    *redrivePolicy
	messages   []*memMessage
}

type redrivePolicy struct {
	dlqARN          string
	maxReceiveCount int
}

type memMessage struct {
	id              string
	body            string
	attrs           map[string]string
	sentAt          time.Time
	firstReceivedAt time.Time
	receiveCount    int
	visibleAt       time.Time
	receiptHandle   string
}

func NewInMemoryClient() *InMemoryClient {
	return &InMemoryClient{
		queues: make(map[string]*memQueue),
	}
}

func (c *InMemoryClient) CreateQueue(ctx context.Context, name string, attrs QueueAttributes) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	url := "mem://queues/" + name
	if q, ok := c.queues[url]; ok {
		if attrs.VisibilityTimeout > 0 {
			q.visibility = attrs.VisibilityTimeout
		}
		return url, nil
	}

	visibility := attrs.VisibilityTimeout
	if visibility <= 0 {
		visibility = 30 * time.Second
	}

	c.queues[url] = &memQueue{
		name:       name,
		url:        url,
		arn:        "arn:mem:queues:local:" + name,
		visibility: visibility,
	}
	return url, nil
}

func (c *InMemoryClient) QueueARN(ctx context.Context, queueURL string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[queueURL]
	if !ok {
		return "", fmt.Errorf("queue %s does not exist", queueURL)
	}
	return q.arn, nil
}

func (c *InMemoryClient) ConfigureDeadLetter(ctx context.Context, sourceURL, dlqARN string, maxReceiveCount int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[sourceURL]
	if !ok {
		return fmt.Errorf("queue %s does not exist", sourceURL)
	}
	if maxReceiveCount <= 0 {
		return fmt.Errorf("max receive count must be positive, got %d", maxReceiveCount)
	}

	q.redrive = &redrivePolicy{
		dlqARN:          dlqARN,
		maxReceiveCount: maxReceiveCount,
	}
	return nil
}

func (c *InMemoryClient) Send(ctx context.Context, queueURL, body string, attrs map[string]string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[queueURL]
	if !ok {
		return "", fmt.Errorf("queue %s does not exist", queueURL)
	}

	attrCopy := make(map[string]string, len(attrs))
	for k, v := range attrs {
		attrCopy[k] = v
	}

	msg := &memMessage{
		id:     uuid.NewString(),
		body:   body,
		attrs:  attrCopy,
		sentAt: time.Now(),
	}
	q.messages = append(q.messages, msg)
	return msg.id, nil
}

func (c *InMemoryClient) Receive(ctx context.Context, queueURL string, opts ReceiveOptions) ([]Message, error) {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 1
	}

	deadline := time.Now().Add(opts.WaitTime)
	for {
		msgs, err := c.receiveOnce(queueURL, opts)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 || time.Now().After(deadline) {
			return msgs, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(memPollInterval):
		}
	}
}

func (c *InMemoryClient) receiveOnce(queueURL string, opts ReceiveOptions) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[queueURL]
	if !ok {
		return nil, fmt.Errorf("queue %s does not exist", queueURL)
	}

	visibility := q.visibility
	if opts.VisibilityTimeout > 0 {
		visibility = opts.VisibilityTimeout
	}

	now := time.Now()
	var out []Message
	kept := q.messages[:0]
	for _, msg := range q.messages {
		if len(out) >= opts.MaxMessages || now.Before(msg.visibleAt) {
			kept = append(kept, msg)
			continue
		}

		if q.redrive != nil && msg.receiveCount >= q.redrive.maxReceiveCount {
			// Receive limit exhausted: route to the DLQ instead of delivering.
			c.redriveLocked(q, msg)
			continue
		}

		msg.receiveCount++
		if msg.firstReceivedAt.IsZero() {
			msg.firstReceivedAt = now
		}
		msg.visibleAt = now.Add(visibility)
		msg.receiptHandle = uuid.NewString()

		out = append(out, Message{
			MessageID:       msg.id,
			ReceiptHandle:   msg.receiptHandle,
			Body:            msg.body,
			Attributes:      msg.attrs,
			ReceiveCount:    msg.receiveCount,
			SentAt:          msg.sentAt,
			FirstReceivedAt: msg.firstReceivedAt,
		})
		kept = append(kept, msg)
	}
	q.messages = kept

	return out, nil
}

// redriveLocked moves a message to the queue's DLQ, preserving body,
// attributes and timestamps. Caller holds c.mu.
func (c *InMemoryClient) redriveLocked(q *memQueue, msg *memMessage) {
	for _, candidate := range c.queues {
		if candidate.arn != q.redrive.dlqARN {
			continue
		}
		moved := &memMessage{
			id:     msg.id,
			body:   msg.body,
			attrs:  msg.attrs,
			sentAt: msg.sentAt,
		}
		candidate.messages = append(candidate.messages, moved)
		return
	}
	// No DLQ registered under that ARN: the message is dropped, matching a
	// misconfigured redrive policy on a real broker.
}

func (c *InMemoryClient) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[queueURL]
	if !ok {
		return fmt.Errorf("queue %s does not exist", queueURL)
	}

	for i, msg := range q.messages {
		if msg.receiptHandle == receiptHandle && receiptHandle != "" {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("receipt handle is not valid for queue %s", q.name)
}

func (c *InMemoryClient) DeleteQueue(ctx context.Context, queueURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.queues[queueURL]; !ok {
		return fmt.Errorf("queue %s does not exist", queueURL)
	}
	delete(c.queues, queueURL)
	return nil
}

func (c *InMemoryClient) ListQueues(ctx context.Context, prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var urls []string
	for url, q := range c.queues {
		if prefix == "" || strings.HasPrefix(q.name, prefix) {
			urls = append(urls, url)
		}
	}
	return urls, nil
}

func (c *InMemoryClient) Purge(ctx context.Context, queueURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[queueURL]
	if !ok {
		return fmt.Errorf("queue %s does not exist", queueURL)
	}
	q.messages = nil
	return nil
}
