package models

import "time"

// EventTypeInvalid classifies DLQ messages whose body could not be parsed
// as an event envelope.
const EventTypeInvalid = "INVALID"

// FailedMessage is the monitor's record of a message observed on a DLQ.
// Records live for the monitor's lifetime and are consulted for replay;
// the monitor never deletes the underlying message from the DLQ.
type FailedMessage struct {
	MessageID       string    `json:"messageId"`
	ReceiptHandle   string    `json:"receiptHandle"`
	QueueName       string    `json:"queueName"`
	Body            string    `json:"body"`
	ReceiveCount    int       `json:"approximateReceiveCount"`
	SentAt          time.Time `json:"sentTimestamp"`
	FirstReceivedAt time.Time `json:"firstReceivedTimestamp"`
	EventType       string    `json:"eventType"`
	CorrelationID   string    `json:"correlationId,omitempty"`
	RecordedAt      time.Time `json:"recordedAt"`
}
