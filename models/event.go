package models

import "encoding/json"

// Message type discriminators carried in the queue envelope. Consumers must
// ignore messages whose discriminator they do not recognize.
const (
	MessageTypeClientEvent = "client_event"
)

// RawClientEvent is an untrusted event as submitted by the browser. Any field
// may be missing, empty, or oversized.
type RawClientEvent struct {
	Type      string          `json:"type"`
	TS        interface{}     `json:"ts"`
	Timestamp interface{}     `json:"timestamp"`
	EventTime interface{}     `json:"eventTime"`
	Route     string          `json:"route"`
	Page      string          `json:"page"`
	Source    string          `json:"source"`
	Referrer  string          `json:"referrer"`
	SessionID string          `json:"sessionId"`
	VisitorID string          `json:"visitorId"`
	Metadata  json.RawMessage `json:"metadata"`
}

// NormalizedEvent is the canonical record shape. Every string field is always
// set, possibly to the empty string; UserAgent is omitted entirely when
// capture is disabled.
type NormalizedEvent struct {
	EventType  string          `json:"eventType"`
	EventTime  string          `json:"eventTime"`
	EventDate  string          `json:"eventDate"`
	EventHour  string          `json:"eventHour"`
	Route      string          `json:"route"`
	Page       string          `json:"page"`
	Source     string          `json:"source"`
	Referrer   string          `json:"referrer"`
	SessionID  string          `json:"sessionId"`
	VisitorID  string          `json:"visitorId"`
	UserAgent  string          `json:"userAgent,omitempty"`
	IPHash     string          `json:"ipHash"`
	Metadata   json.RawMessage `json:"metadata"`
	ReceivedAt string          `json:"receivedAt"`
}

// QueueMessage wraps one NormalizedEvent for transport through the queue.
type QueueMessage struct {
	MessageType string          `json:"messageType"`
	CreatedAt   string          `json:"createdAt"`
	Event       NormalizedEvent `json:"event"`
}

// RequestContext carries the request-scoped attributes the HTTP layer
// captures on behalf of the event batch.
type RequestContext struct {
	IP        string
	UserAgent string
	Referrer  string
	Route     string
}

// IngestResult is the outcome of one ingestion call.
type IngestResult struct {
	Accepted     int    `json:"accepted"`
	Queued       int    `json:"queued"`
	Rejected     int    `json:"rejected"`
	Failed       int    `json:"failed,omitempty"`
	QueueEnabled bool   `json:"queueEnabled"`
	Reason       string `json:"reason,omitempty"`
}

// QueueRecord is one received queue message as handed to the consumer
// processor: the broker message ID plus the raw body.
type QueueRecord struct {
	MessageID string
	Body      []byte
}

// ProcessResult is the outcome of processing one batch of queue records.
// BatchItemFailures lists the message IDs that must be redelivered.
type ProcessResult struct {
	OK                bool
	Processed         int
	Failed            int
	BatchItemFailures []string
}
