package broker

import (
	"context"
	"time"
)

// Message is one received queue message. ReceiptHandle is only valid until
// the visibility timeout elapses or the message is received again.
type Message struct {
	MessageID       string
	ReceiptHandle   string
	Body            string
	Attributes      map[string]string
	ReceiveCount    int
	SentAt          time.Time
	FirstReceivedAt time.Time
}

type QueueAttributes struct {
	VisibilityTimeout time.Duration
}

type ReceiveOptions struct {
	MaxMessages       int
	VisibilityTimeout time.Duration // zero means the queue default
	WaitTime          time.Duration
}

// Client abstracts the queue broker. Implementations must be safe for
// concurrent use.
type Client interface {
	CreateQueue(ctx context.Context, name string, attrs QueueAttributes) (string, error)
	QueueARN(ctx context.Context, queueURL string) (string, error)
	ConfigureDeadLetter(ctx context.Context, sourceURL, dlqARN string, maxReceiveCount int) error
	Send(ctx context.Context, queueURL, body string, attrs map[string]string) (string, error)
	Receive(ctx context.Context, queueURL string, opts ReceiveOptions) ([]Message, error)
	Delete(ctx context.Context, queueURL, receiptHandle string) error
	DeleteQueue(ctx context.Context, queueURL string) error
	ListQueues(ctx context.Context, prefix string) ([]string, error)
	Purge(ctx context.Context, queueURL string) error
}
