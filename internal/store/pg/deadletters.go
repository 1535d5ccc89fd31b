package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/answergrid/internal/store"
)

// PGDeadLetterStore implements store.DeadLetterStore backed by Postgres.
type PGDeadLetterStore struct {
	db *sql.DB
}

func NewPGDeadLetterStore(db *sql.DB) *PGDeadLetterStore {
	return &PGDeadLetterStore{db: db}
}

func (s *PGDeadLetterStore) Append(ctx context.Context, rec *store.DeadLetterRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = store.GenNewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.TenantID == "" {
		rec.TenantID = "unknown"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letters (id, tenant_id, queue_message_id, event_type, payload,
		 error_message, error_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.TenantID, rec.QueueMessageID, rec.EventType, rec.Payload,
		rec.ErrorMessage, rec.ErrorStatus, rec.CreatedAt)
	return err
}

func (s *PGDeadLetterStore) List(ctx context.Context, limit int) ([]store.DeadLetterRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, queue_message_id, event_type, payload, error_message,
		 error_status, created_at, replayed_at
		 FROM dead_letters ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []store.DeadLetterRecord
	for rows.Next() {
		rec, err := scanDeadLetter(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *PGDeadLetterStore) Get(ctx context.Context, id uuid.UUID) (*store.DeadLetterRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, queue_message_id, event_type, payload, error_message,
		 error_status, created_at, replayed_at
		 FROM dead_letters WHERE id = $1`, id)
	rec, err := scanDeadLetter(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *PGDeadLetterStore) MarkReplayed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE dead_letters SET replayed_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	return err
}

func (s *PGDeadLetterStore) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dead_letters WHERE created_at < $1 AND replayed_at IS NOT NULL`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanDeadLetter(scan func(dest ...any) error) (*store.DeadLetterRecord, error) {
	var rec store.DeadLetterRecord
	err := scan(&rec.ID, &rec.TenantID, &rec.QueueMessageID, &rec.EventType, &rec.Payload,
		&rec.ErrorMessage, &rec.ErrorStatus, &rec.CreatedAt, &rec.ReplayedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
