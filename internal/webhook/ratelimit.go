package webhook

import (
	"sync"
	"time"
)

const (
	// maxTrackedKeys caps the number of tracked rate-limit keys to prevent
	// memory exhaustion from attackers rotating source IPs/keys.
	maxTrackedKeys = 4096

	// rateLimitWindow is the sliding window duration for rate counting.
	rateLimitWindow = 60 * time.Second

	// rateLimitMaxHits is the max requests per key within a window.
	rateLimitMaxHits = 120
)

type rateLimitEntry struct {
	windowStart time.Time
	count       int
}

// RateLimiter bounds inbound webhook request rates per source key with a
// hard cap on tracked keys. Safe for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
}

// NewRateLimiter creates a bounded webhook rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{entries: make(map[string]*rateLimitEntry)}
}

// Allow returns true if the key is within rate limits. Automatically prunes
// stale entries and enforces the cap on tracked keys.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.windowStart) >= rateLimitWindow {
				delete(r.entries, k)
			}
		}
		// Hard eviction if still at cap (FIFO-ish via map iteration)
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok || now.Sub(e.windowStart) >= rateLimitWindow {
		r.entries[key] = &rateLimitEntry{windowStart: now, count: 1}
		return true
	}

	e.count++
	return e.count <= rateLimitMaxHits
}
