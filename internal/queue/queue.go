// Package queue defines the durable at-least-once message queue contract
// between the webhook receiver and the event processor, with a Redis
// Streams implementation for deployment and an in-memory one for tests.
//
// Delivery semantics: messages may be delivered more than once and
// concurrently; a message that is never acked is redelivered after an idle
// timeout until the configured maximum delivery count, after which the
// consumer hands it to the caller flagged as exhausted.
package queue

import (
	"context"
	"errors"
)

// Attribute keys set by the webhook receiver.
const (
	AttrChannelType = "channel_type"
	AttrEventType   = "event_type"
	AttrEventID     = "event_id"
	AttrReceivedAt  = "received_at"
)

// Message is one delivery from the queue.
type Message struct {
	ID            string
	Body          []byte
	Attributes    map[string]string
	DeliveryCount int
}

// ErrEmpty is returned by Receive when no message became available within
// the blocking window. Callers poll again.
var ErrEmpty = errors.New("queue: no message available")

// Publisher enqueues raw event bytes with routing attributes.
type Publisher interface {
	Publish(ctx context.Context, body []byte, attrs map[string]string) (string, error)
}

// Consumer pulls deliveries. A message is redelivered until acked or until
// its delivery count exceeds the broker's configured maximum.
type Consumer interface {
	Receive(ctx context.Context) (*Message, error)
	Ack(ctx context.Context, id string) error
}

// Queue is both ends plus lifecycle.
type Queue interface {
	Publisher
	Consumer
	Close() error
}
