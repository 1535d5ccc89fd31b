package queue

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestClaimStaleSingleFlight(t *testing.T) {
	// The address is never dialed: while another worker holds the claim
	// cursor, claimStale must skip to a fresh read instead of issuing a
	// competing XAUTOCLAIM.
	cfg := RedisQueueConfig{}
	cfg.applyDefaults()
	q := &RedisQueue{
		rdb:        redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}),
		cfg:        cfg,
		claimStart: "0-0",
	}
	q.claimMu.Lock()
	defer q.claimMu.Unlock()

	msg, err := q.claimStale(context.Background())
	if msg != nil || err != nil {
		t.Fatalf("claimStale while cursor held = (%v, %v), want a silent skip", msg, err)
	}
	if q.claimStart != "0-0" {
		t.Errorf("claimStart = %q, cursor must not move on a skipped claim", q.claimStart)
	}
}
