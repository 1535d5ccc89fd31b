// Package retention prunes aged diagnostic records (audit log, dead
// letters) on a cron schedule.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/answergrid/internal/config"
	"github.com/nextlevelbuilder/answergrid/internal/store"
)

type Sweeper struct {
	schedule string
	auditAge time.Duration
	dlAge    time.Duration
	audit    store.AuditStore
	letters  store.DeadLetterStore
	gron     *gronx.Gronx
	now      func() time.Time
}

func NewSweeper(cfg config.RetentionConfig, audit store.AuditStore, letters store.DeadLetterStore) *Sweeper {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	return &Sweeper{
		schedule: schedule,
		auditAge: time.Duration(cfg.AuditMaxAgeDays) * 24 * time.Hour,
		dlAge:    time.Duration(cfg.DeadLetterAgeDays) * 24 * time.Hour,
		audit:    audit,
		letters:  letters,
		gron:     gronx.New(),
		now:      time.Now,
	}
}

// Run ticks once a minute and sweeps when the schedule is due. Returns
// when the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.auditAge <= 0 && s.dlAge <= 0 {
		slog.Info("retention sweeping disabled (no max ages configured)")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			due, err := s.gron.IsDue(s.schedule, now.Truncate(time.Minute))
			if err != nil {
				slog.Error("retention schedule invalid", "schedule", s.schedule, "error", err)
				return err
			}
			if due {
				s.Sweep(ctx)
			}
		}
	}
}

// Sweep purges everything past its retention age.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()
	if s.auditAge > 0 {
		n, err := s.audit.Purge(ctx, now.Add(-s.auditAge))
		if err != nil {
			slog.Error("audit purge failed", "error", err)
		} else if n > 0 {
			slog.Info("audit records purged", "count", n)
		}
	}
	if s.dlAge > 0 {
		n, err := s.letters.Purge(ctx, now.Add(-s.dlAge))
		if err != nil {
			slog.Error("dead-letter purge failed", "error", err)
		} else if n > 0 {
			slog.Info("dead letters purged", "count", n)
		}
	}
}
