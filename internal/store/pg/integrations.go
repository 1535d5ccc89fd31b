package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nextlevelbuilder/answergrid/internal/store"
)

// PGIntegrationStore implements store.IntegrationStore backed by Postgres.
type PGIntegrationStore struct {
	db *sql.DB
}

func NewPGIntegrationStore(db *sql.DB) *PGIntegrationStore {
	return &PGIntegrationStore{db: db}
}

func (s *PGIntegrationStore) FindByRoutingKey(ctx context.Context, channelType, routingKey string) (*store.IntegrationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, user_id, channel_type, routing_key, encrypted_credential,
		 status, mention_only, mention_tokens, persona, features, created_at, updated_at
		 FROM integrations
		 WHERE channel_type = $1 AND routing_key = $2 AND status = $3`,
		channelType, routingKey, store.IntegrationActive)

	var rec store.IntegrationRecord
	var cred, persona *string
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.UserID, &rec.ChannelType, &rec.RoutingKey, &cred,
		&rec.Status, &rec.MentionOnly, pq.Array(&rec.MentionTokens), &persona,
		pq.Array(&rec.Features), &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if cred != nil {
		rec.EncryptedCredential = *cred
	}
	if persona != nil {
		rec.Persona = *persona
	}
	return &rec, nil
}

func (s *PGIntegrationStore) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE integrations SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id)
	return err
}
