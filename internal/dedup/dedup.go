// Package dedup provides the duplicate-delivery guard: a TTL-bearing keyed
// store shared across worker instances. The Redis implementation is the
// deployment default; the in-memory one covers tests and single-process
// standalone mode.
//
// A narrow race remains under truly concurrent duplicate delivery of the
// same message to two workers; the thread-store check downstream narrows it
// further, and the residual duplicate send is accepted over a locking layer.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a processed message id is remembered. Webhook
// retries arrive within minutes; 20 minutes covers observed retry horizons.
const DefaultTTL = 20 * time.Minute

// Guard reserves message keys. Seen atomically records the key and reports
// whether it had already been recorded.
type Guard interface {
	Seen(ctx context.Context, key string) (bool, error)
	// Forget releases a reservation so a failed event can be redelivered
	// and processed again.
	Forget(ctx context.Context, key string) error
}

// RedisGuard implements Guard on Redis SET NX with a TTL.
type RedisGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisGuard wraps an existing client. ttl <= 0 uses DefaultTTL.
func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

func (g *RedisGuard) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, "dedup:"+key, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !ok, nil
}

func (g *RedisGuard) Forget(ctx context.Context, key string) error {
	return g.rdb.Del(ctx, "dedup:"+key).Err()
}

// MemoryGuard is a process-local Guard with TTL eviction and a hard entry
// cap, for tests and standalone mode.
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	maxSize int
}

// NewMemoryGuard creates a bounded in-memory guard.
func NewMemoryGuard(ttl time.Duration, maxSize int) *MemoryGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = 5000
	}
	return &MemoryGuard{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

func (g *MemoryGuard) Seen(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if exp, ok := g.entries[key]; ok && now.Before(exp) {
		return true, nil
	}

	if len(g.entries) >= g.maxSize {
		for k, exp := range g.entries {
			if now.After(exp) {
				delete(g.entries, k)
			}
		}
		// Still full after pruning: drop arbitrary entries rather than grow.
		for k := range g.entries {
			if len(g.entries) < g.maxSize {
				break
			}
			delete(g.entries, k)
		}
	}

	g.entries[key] = now.Add(g.ttl)
	return false, nil
}

func (g *MemoryGuard) Forget(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, key)
	return nil
}
