// Package channels defines the outbound reply contract and shared send
// plumbing for the chat platforms.
package channels

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

var (
	// ErrAuthRevoked marks a send rejected for credential reasons. The
	// processor reacts by erroring the tenant integration.
	ErrAuthRevoked = errors.New("channel credential revoked")
	// ErrSendFailed marks any other delivery failure.
	ErrSendFailed = errors.New("channel send failed")
)

// OutboundMessage is a formatted reply ready for a channel API.
type OutboundMessage struct {
	RoutingKey string // slack channel id / whatsapp business phone id
	Recipient  string // whatsapp user phone; unused on slack
	ThreadRef  string // reply-thread anchor, empty for top level
	Text       string
	Credential string // decrypted tenant credential, empty = platform default
}

// SendResult reports a successful delivery.
type SendResult struct {
	ExternalID string
}

// Sender delivers formatted replies for one channel type.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) (*SendResult, error)
}

// KeyedLimiter rate-limits sends per routing key so one busy workspace
// cannot starve the rest. Keys are created lazily and never expire; the
// key space is bounded by the number of active integrations.
type KeyedLimiter struct {
	mu       sync.Mutex
	perSec   rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewKeyedLimiter allows perSec sends per key. perSec <= 0 defaults to 1.
func NewKeyedLimiter(perSec int) *KeyedLimiter {
	if perSec <= 0 {
		perSec = 1
	}
	return &KeyedLimiter{
		perSec:   rate.Limit(perSec),
		burst:    perSec,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the key may send or the context is done.
func (k *KeyedLimiter) Wait(ctx context.Context, key string) error {
	k.mu.Lock()
	lim, ok := k.limiters[key]
	if !ok {
		lim = rate.NewLimiter(k.perSec, k.burst)
		k.limiters[key] = lim
	}
	k.mu.Unlock()
	return lim.Wait(ctx)
}
