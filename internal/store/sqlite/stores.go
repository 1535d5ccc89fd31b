package sqlite

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

// IntegrationStore implements store.IntegrationStore on SQLite.
type IntegrationStore struct {
	db *sql.DB
}

func (s *IntegrationStore) FindByRoutingKey(ctx context.Context, channelType, routingKey string) (*store.IntegrationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, user_id, channel_type, routing_key, encrypted_credential,
		 status, mention_only, mention_tokens, persona, features, created_at, updated_at
		 FROM integrations
		 WHERE channel_type = ? AND routing_key = ? AND status = ?`,
		channelType, routingKey, store.IntegrationActive)

	var rec store.IntegrationRecord
	var id string
	var cred, persona *string
	var tokens, features string
	err := row.Scan(&id, &rec.TenantID, &rec.UserID, &rec.ChannelType, &rec.RoutingKey,
		&cred, &rec.Status, &rec.MentionOnly, &tokens, &persona, &features,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse integration id: %w", err)
	}
	if cred != nil {
		rec.EncryptedCredential = *cred
	}
	if persona != nil {
		rec.Persona = *persona
	}
	_ = json.Unmarshal([]byte(tokens), &rec.MentionTokens)
	_ = json.Unmarshal([]byte(features), &rec.Features)
	return &rec, nil
}

func (s *IntegrationStore) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE integrations SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id.String())
	return err
}

// ThreadStore implements store.ThreadStore on SQLite.
type ThreadStore struct {
	db *sql.DB
}

func (s *ThreadStore) FindOrCreate(ctx context.Context, tenantID, userID, channel string) (*store.Thread, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, tenant_id, user_id, channel, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, user_id, channel) DO NOTHING`,
		store.GenNewID().String(), tenantID, userID, channel, now, now)
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}

	var t store.Thread
	var id string
	err = s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, user_id, channel, created_at, updated_at
		 FROM threads WHERE tenant_id = ? AND user_id = ? AND channel = ?`,
		tenantID, userID, channel).
		Scan(&id, &t.TenantID, &t.UserID, &t.Channel, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("find thread: %w", err)
	}
	t.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse thread id: %w", err)
	}
	return &t, nil
}

func (s *ThreadStore) Append(ctx context.Context, threadID uuid.UUID, msg *store.ThreadMessage) error {
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

	var extID any
	if msg.ExternalMessageID != "" {
		extID = msg.ExternalMessageID
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO thread_messages (id, thread_id, role, channel, content, confidence,
		 external_message_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID.String(), threadID.String(), msg.Role, msg.Channel, msg.Content,
		msg.Confidence, extID, string(meta), msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE threads SET updated_at = ? WHERE id = ?`,
		msg.CreatedAt, threadID.String()); err != nil {
		return fmt.Errorf("bump thread: %w", err)
	}
	return tx.Commit()
}

func (s *ThreadStore) HasExternalMessage(ctx context.Context, tenantID, externalMessageID string) (bool, error) {
	if externalMessageID == "" {
		return false, nil
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM thread_messages m
		   JOIN threads t ON t.id = m.thread_id
		   WHERE t.tenant_id = ? AND m.external_message_id = ?)`,
		tenantID, externalMessageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check external message: %w", err)
	}
	return exists, nil
}

func (s *ThreadStore) ListMessages(ctx context.Context, tenantID, userID string, limit int) ([]store.ThreadMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.thread_id, m.role, m.channel, m.content, m.confidence,
		 m.external_message_id, m.metadata, m.created_at
		 FROM thread_messages m
		 JOIN threads t ON t.id = m.thread_id
		 WHERE t.tenant_id = ? AND t.user_id = ?
		 ORDER BY m.created_at DESC
		 LIMIT ?`,
		tenantID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []store.ThreadMessage
	for rows.Next() {
		var m store.ThreadMessage
		var id, tid string
		var extID, meta *string
		if err := rows.Scan(&id, &tid, &m.Role, &m.Channel, &m.Content,
			&m.Confidence, &extID, &meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ID, _ = uuid.Parse(id)
		m.ThreadID, _ = uuid.Parse(tid)
		if extID != nil {
			m.ExternalMessageID = *extID
		}
		if meta != nil && *meta != "" {
			_ = json.Unmarshal([]byte(*meta), &m.Metadata)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AuditStore implements store.AuditStore on SQLite.
type AuditStore struct {
	db *sql.DB
}

func (s *AuditStore) Append(ctx context.Context, rec *store.AuditRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, actor, action, channel, query, response, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		store.GenNewID().String(), rec.Actor, rec.Action, rec.Channel,
		store.TruncateForAudit(rec.Query), store.TruncateForAudit(rec.Response),
		rec.Confidence, rec.CreatedAt)
	return err
}

func (s *AuditStore) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeadLetterStore implements store.DeadLetterStore on SQLite.
type DeadLetterStore struct {
	db *sql.DB
}

func (s *DeadLetterStore) Append(ctx context.Context, rec *store.DeadLetterRecord) error {
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
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.TenantID, rec.QueueMessageID, rec.EventType, rec.Payload,
		rec.ErrorMessage, rec.ErrorStatus, rec.CreatedAt)
	return err
}

func (s *DeadLetterStore) List(ctx context.Context, limit int) ([]store.DeadLetterRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, queue_message_id, event_type, payload, error_message,
		 error_status, created_at, replayed_at
		 FROM dead_letters ORDER BY created_at DESC LIMIT ?`, limit)
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

func (s *DeadLetterStore) Get(ctx context.Context, id uuid.UUID) (*store.DeadLetterRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, queue_message_id, event_type, payload, error_message,
		 error_status, created_at, replayed_at
		 FROM dead_letters WHERE id = ?`, id.String())
	rec, err := scanDeadLetter(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *DeadLetterStore) MarkReplayed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE dead_letters SET replayed_at = ? WHERE id = ?`, time.Now().UTC(), id.String())
	return err
}

func (s *DeadLetterStore) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dead_letters WHERE created_at < ? AND replayed_at IS NOT NULL`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanDeadLetter(scan func(dest ...any) error) (*store.DeadLetterRecord, error) {
	var rec store.DeadLetterRecord
	var id string
	err := scan(&id, &rec.TenantID, &rec.QueueMessageID, &rec.EventType, &rec.Payload,
		&rec.ErrorMessage, &rec.ErrorStatus, &rec.CreatedAt, &rec.ReplayedAt)
	if err != nil {
		return nil, err
	}
	rec.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse dead letter id: %w", err)
	}
	return &rec, nil
}
