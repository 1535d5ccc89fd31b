package retention

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/answergrid/internal/config"
	"github.com/nextlevelbuilder/answergrid/internal/store"
	"github.com/nextlevelbuilder/answergrid/internal/store/memory"
)

func TestSweepPurgesAgedRecords(t *testing.T) {
	audit := memory.NewAuditStore()
	letters := memory.NewDeadLetterStore()
	ctx := context.Background()

	now := time.Now()
	old := now.Add(-100 * 24 * time.Hour)
	audit.Append(ctx, &store.AuditRecord{Actor: "a", Action: "reply.sent", CreatedAt: old})
	audit.Append(ctx, &store.AuditRecord{Actor: "a", Action: "reply.sent", CreatedAt: now})
	replayed := &store.DeadLetterRecord{TenantID: "t", ErrorMessage: "x", CreatedAt: old}
	letters.Append(ctx, replayed)
	letters.MarkReplayed(ctx, replayed.ID)
	letters.Append(ctx, &store.DeadLetterRecord{TenantID: "t", ErrorMessage: "y", CreatedAt: old})
	letters.Append(ctx, &store.DeadLetterRecord{TenantID: "t", ErrorMessage: "z", CreatedAt: now})

	s := NewSweeper(config.RetentionConfig{AuditMaxAgeDays: 90, DeadLetterAgeDays: 30}, audit, letters)
	s.Sweep(ctx)

	if got := len(audit.Records()); got != 1 {
		t.Errorf("audit records after sweep = %d, want 1", got)
	}
	// Only replayed dead letters age out; unhandled ones stay visible.
	remaining, _ := letters.List(ctx, 10)
	if len(remaining) != 2 {
		t.Errorf("dead letters after sweep = %d, want 2", len(remaining))
	}
	for _, r := range remaining {
		if r.ErrorMessage == "x" {
			t.Error("replayed aged dead letter should be purged")
		}
	}
}

func TestSweepDisabledAges(t *testing.T) {
	audit := memory.NewAuditStore()
	letters := memory.NewDeadLetterStore()
	ctx := context.Background()
	audit.Append(ctx, &store.AuditRecord{Actor: "a", Action: "x", CreatedAt: time.Now().Add(-1000 * time.Hour)})

	s := NewSweeper(config.RetentionConfig{}, audit, letters)
	s.Sweep(ctx)

	if got := len(audit.Records()); got != 1 {
		t.Errorf("zero max age must mean keep forever, got %d records", got)
	}
}
