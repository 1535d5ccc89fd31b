package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/answergrid/internal/store"
)

// PGThreadStore implements store.ThreadStore backed by Postgres.
type PGThreadStore struct {
	db *sql.DB
}

func NewPGThreadStore(db *sql.DB) *PGThreadStore {
	return &PGThreadStore{db: db}
}

func (s *PGThreadStore) FindOrCreate(ctx context.Context, tenantID, userID, channel string) (*store.Thread, error) {
	var t store.Thread
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, user_id, channel, created_at, updated_at
		 FROM threads WHERE tenant_id = $1 AND user_id = $2 AND channel = $3`,
		tenantID, userID, channel).
		Scan(&t.ID, &t.TenantID, &t.UserID, &t.Channel, &t.CreatedAt, &t.UpdatedAt)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find thread: %w", err)
	}

	now := time.Now().UTC()
	t = store.Thread{
		ID:        store.GenNewID(),
		TenantID:  tenantID,
		UserID:    userID,
		Channel:   channel,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Concurrent find-or-create resolves via the unique index; re-read on conflict.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO threads (id, tenant_id, user_id, channel, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (tenant_id, user_id, channel) DO NOTHING`,
		t.ID, t.TenantID, t.UserID, t.Channel, now, now)
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at FROM threads
		 WHERE tenant_id = $1 AND user_id = $2 AND channel = $3`,
		tenantID, userID, channel).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("reread thread: %w", err)
	}
	return &t, nil
}

func (s *PGThreadStore) Append(ctx context.Context, threadID uuid.UUID, msg *store.ThreadMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = store.GenNewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	meta, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("marshal message metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO thread_messages (id, thread_id, role, channel, content, confidence,
		 external_message_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.ID, threadID, msg.Role, msg.Channel, msg.Content, msg.Confidence,
		nilStr(msg.ExternalMessageID), meta, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE threads SET updated_at = $1 WHERE id = $2`, msg.CreatedAt, threadID)
	if err != nil {
		return fmt.Errorf("bump thread: %w", err)
	}
	return tx.Commit()
}

func (s *PGThreadStore) HasExternalMessage(ctx context.Context, tenantID, externalMessageID string) (bool, error) {
	if externalMessageID == "" {
		return false, nil
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM thread_messages m
		   JOIN threads t ON t.id = m.thread_id
		   WHERE t.tenant_id = $1 AND m.external_message_id = $2)`,
		tenantID, externalMessageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check external message: %w", err)
	}
	return exists, nil
}

func (s *PGThreadStore) ListMessages(ctx context.Context, tenantID, userID string, limit int) ([]store.ThreadMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.thread_id, m.role, m.channel, m.content, m.confidence,
		 m.external_message_id, m.metadata, m.created_at
		 FROM thread_messages m
		 JOIN threads t ON t.id = m.thread_id
		 WHERE t.tenant_id = $1 AND t.user_id = $2
		 ORDER BY m.created_at DESC
		 LIMIT $3`,
		tenantID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []store.ThreadMessage
	for rows.Next() {
		var m store.ThreadMessage
		var extID *string
		var meta []byte
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Channel, &m.Content,
			&m.Confidence, &extID, &meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if extID != nil {
			m.ExternalMessageID = *extID
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &m.Metadata)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nilStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
