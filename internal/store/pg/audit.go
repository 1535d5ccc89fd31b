package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/nextlevelbuilder/answergrid/internal/store"
)

// PGAuditStore implements store.AuditStore backed by Postgres.
type PGAuditStore struct {
	db *sql.DB
}

func NewPGAuditStore(db *sql.DB) *PGAuditStore {
	return &PGAuditStore{db: db}
}

func (s *PGAuditStore) Append(ctx context.Context, rec *store.AuditRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, actor, action, channel, query, response, confidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		store.GenNewID(), rec.Actor, rec.Action, rec.Channel,
		store.TruncateForAudit(rec.Query), store.TruncateForAudit(rec.Response),
		rec.Confidence, rec.CreatedAt)
	return err
}

func (s *PGAuditStore) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
