package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryGuard_SeenOnceThenDuplicate(t *testing.T) {
	g := NewMemoryGuard(time.Minute, 100)
	ctx := context.Background()

	seen, err := g.Seen(ctx, "wamid.A")
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if seen {
		t.Error("first observation reported as duplicate")
	}

	seen, err = g.Seen(ctx, "wamid.A")
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if !seen {
		t.Error("second observation not reported as duplicate")
	}
}

func TestMemoryGuard_TTLExpiry(t *testing.T) {
	g := NewMemoryGuard(10*time.Millisecond, 100)
	ctx := context.Background()

	if _, err := g.Seen(ctx, "k"); err != nil {
		t.Fatalf("Seen: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	seen, err := g.Seen(ctx, "k")
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if seen {
		t.Error("expired entry still reported as duplicate")
	}
}

func TestMemoryGuard_Forget(t *testing.T) {
	g := NewMemoryGuard(time.Minute, 100)
	ctx := context.Background()

	g.Seen(ctx, "k")
	if err := g.Forget(ctx, "k"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	seen, _ := g.Seen(ctx, "k")
	if seen {
		t.Error("forgotten key still reported as duplicate")
	}
}

func TestMemoryGuard_SizeBound(t *testing.T) {
	g := NewMemoryGuard(time.Minute, 10)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if _, err := g.Seen(ctx, fmt.Sprintf("key-%d", i)); err != nil {
			t.Fatalf("Seen: %v", err)
		}
	}
	if len(g.entries) > 10 {
		t.Errorf("entries = %d, want <= 10", len(g.entries))
	}
}
