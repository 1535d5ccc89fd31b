// Package event defines the canonical inbound event model and the
// per-family normalizers that map heterogeneous channel payloads onto it.
package event

import (
	"errors"
	"time"
)

// Channel identifiers. These match the webhook mount paths and the
// queue's channel_type attribute.
const (
	ChannelSlack    = "slack"
	ChannelWhatsApp = "whatsapp"
	ChannelAPI      = "api"
)

// InboundEvent is a raw event as received at the webhook edge. It carries
// the exact bytes as transmitted plus minimal routing attributes, and lives
// only until it is normalized or dead-lettered.
type InboundEvent struct {
	Raw         []byte
	ChannelType string            // "slack" or "whatsapp"
	DecodedType string            // event family tag (e.g. "message", "wa.message")
	Attributes  map[string]string // queue routing attributes
}

// NormalizedMessage is the canonical message shape, independent of the
// channel's historical payload variants.
type NormalizedMessage struct {
	ExternalMessageID string    // channel-assigned message id (dedup key)
	ChannelType       string    // ChannelSlack / ChannelWhatsApp
	RoutingKey        string    // channel-specific routing key (e.g. group/channel id)
	SenderID          string
	SenderDisplayName string
	Text              string
	ThreadRef         string // thread/parent reference, empty when top-level
	IsGroup           bool   // group context vs direct message
	Timestamp         time.Time
}

// DedupKey returns the identifier used by the dedup guard. Falls back to a
// timestamp-scoped key when the channel assigned no message id.
func (m *NormalizedMessage) DedupKey() string {
	if m.ExternalMessageID != "" {
		return m.ExternalMessageID
	}
	return m.ChannelType + ":" + m.SenderID + ":" + m.Timestamp.UTC().Format(time.RFC3339Nano)
}

// ErrUnsupportedType marks an event family the pipeline does not handle
// (delivery receipts, channel joins, etc.). Callers log and drop, never fail.
var ErrUnsupportedType = errors.New("event: unsupported event type")

type normalizeFunc func(raw []byte) (*NormalizedMessage, error)

// normalizers maps an event family tag to its mapping function. One function
// per family; shape selection happens here, not in business logic.
var normalizers = map[string]normalizeFunc{
	"slack.message":     normalizeSlackMessage,
	"slack.app_mention": normalizeSlackMessage,
	"wa.message":        normalizeWhatsAppMessage,
}

// Normalize maps a raw inbound event into the canonical message shape,
// selected by the event's decoded type tag.
func Normalize(ev InboundEvent) (*NormalizedMessage, error) {
	fn, ok := normalizers[ev.DecodedType]
	if !ok {
		return nil, ErrUnsupportedType
	}
	msg, err := fn(ev.Raw)
	if err != nil {
		return nil, err
	}
	msg.ChannelType = ev.ChannelType
	return msg, nil
}
