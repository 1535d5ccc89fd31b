package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	attrPrefix = "attr:"
	bodyField  = "body"
)

// RedisQueueConfig tunes the Redis Streams queue.
type RedisQueueConfig struct {
	Stream        string        // stream key (default "answergrid:events")
	Group         string        // consumer group (default "processor")
	Consumer      string        // consumer name within the group (e.g. hostname+pid)
	Block         time.Duration // XREADGROUP block window (default 5s)
	ClaimMinIdle  time.Duration // redelivery idle threshold (default 30s)
	MaxDeliveries int           // delivery count ceiling reported to callers (default 5)
}

func (c *RedisQueueConfig) applyDefaults() {
	if c.Stream == "" {
		c.Stream = "answergrid:events"
	}
	if c.Group == "" {
		c.Group = "processor"
	}
	if c.Consumer == "" {
		c.Consumer = "worker-1"
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.ClaimMinIdle <= 0 {
		c.ClaimMinIdle = 30 * time.Second
	}
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = 5
	}
}

// RedisQueue implements Queue on a Redis Stream with a consumer group.
// Receive is safe for concurrent use by a worker pool.
type RedisQueue struct {
	rdb *redis.Client
	cfg RedisQueueConfig

	claimMu    sync.Mutex
	claimStart string // XAUTOCLAIM cursor, guarded by claimMu
}

// NewRedisQueue connects to Redis and ensures the stream + group exist.
func NewRedisQueue(ctx context.Context, opts *redis.Options, cfg RedisQueueConfig) (*RedisQueue, error) {
	cfg.applyDefaults()
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	err := rdb.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		rdb.Close()
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return &RedisQueue{rdb: rdb, cfg: cfg, claimStart: "0-0"}, nil
}

func (q *RedisQueue) Publish(ctx context.Context, body []byte, attrs map[string]string) (string, error) {
	values := map[string]interface{}{bodyField: body}
	for k, v := range attrs {
		values[attrPrefix+k] = v
	}
	id, err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// Receive returns the next delivery: first any message whose previous
// delivery went idle past ClaimMinIdle (a redelivery), else a fresh read.
func (q *RedisQueue) Receive(ctx context.Context) (*Message, error) {
	if msg, err := q.claimStale(ctx); err != nil || msg != nil {
		return msg, err
	}

	streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: q.cfg.Consumer,
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    1,
		Block:    q.cfg.Block,
	}).Result()
	if err == redis.Nil {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	for _, s := range streams {
		for _, xm := range s.Messages {
			return decodeXMessage(xm, 1), nil
		}
	}
	return nil, ErrEmpty
}

// claimStale picks up messages another (or a crashed) consumer left pending.
// Claiming is single-flight: if another worker holds the cursor, this one
// goes straight to a fresh read instead of stomping it.
func (q *RedisQueue) claimStale(ctx context.Context) (*Message, error) {
	if !q.claimMu.TryLock() {
		return nil, nil
	}
	msgs, cursor, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.cfg.Stream,
		Group:    q.cfg.Group,
		Consumer: q.cfg.Consumer,
		MinIdle:  q.cfg.ClaimMinIdle,
		Start:    q.claimStart,
		Count:    1,
	}).Result()
	if err != nil && err != redis.Nil {
		q.claimMu.Unlock()
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	q.claimStart = cursor
	q.claimMu.Unlock()
	if len(msgs) == 0 {
		return nil, nil
	}
	xm := msgs[0]

	deliveries := 2 // claimed at least once before
	pending, err := q.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.cfg.Stream,
		Group:  q.cfg.Group,
		Start:  xm.ID,
		End:    xm.ID,
		Count:  1,
	}).Result()
	if err == nil && len(pending) == 1 {
		deliveries = int(pending[0].RetryCount)
	} else if err != nil {
		slog.Warn("queue: xpending lookup failed", "id", xm.ID, "error", err)
	}
	return decodeXMessage(xm, deliveries), nil
}

func (q *RedisQueue) Ack(ctx context.Context, id string) error {
	if err := q.rdb.XAck(ctx, q.cfg.Stream, q.cfg.Group, id).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// MaxDeliveries exposes the configured delivery ceiling to the processor.
func (q *RedisQueue) MaxDeliveries() int { return q.cfg.MaxDeliveries }

func (q *RedisQueue) Close() error { return q.rdb.Close() }

func decodeXMessage(xm redis.XMessage, deliveries int) *Message {
	msg := &Message{
		ID:            xm.ID,
		Attributes:    make(map[string]string),
		DeliveryCount: deliveries,
	}
	for k, v := range xm.Values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if k == bodyField {
			msg.Body = []byte(s)
			continue
		}
		if strings.HasPrefix(k, attrPrefix) {
			msg.Attributes[strings.TrimPrefix(k, attrPrefix)] = s
		}
	}
	return msg
}
