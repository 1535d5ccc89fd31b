// Package store defines the persistence contracts for the reply pipeline:
// tenant integrations, conversation threads, the audit log, and dead letters.
// Implementations live in pg (managed mode), sqlite (standalone mode), and
// memory (tests).
package store

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// GenNewID returns a new UUIDv7 (time-ordered, index friendly).
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// Integration status values.
const (
	IntegrationActive = "active"
	IntegrationError  = "error"
)

// IntegrationRecord maps a channel routing key to a tenant, its encrypted
// credential, and its reply policy. Credentials are stored encrypted and
// only ever decrypted in memory per event.
type IntegrationRecord struct {
	ID                  uuid.UUID
	TenantID            string
	UserID              string
	ChannelType         string // "slack" or "whatsapp"
	RoutingKey          string // slack channel/team id, whatsapp phone number id
	EncryptedCredential string // empty = use platform default credential
	Status              string // IntegrationActive / IntegrationError
	MentionOnly         bool
	MentionTokens       []string // extra accepted mention tokens beyond the defaults
	Persona             string   // system prompt override, empty = none
	Features            []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IntegrationStore reads and updates tenant channel integrations.
type IntegrationStore interface {
	// FindByRoutingKey returns the active integration for a routing key,
	// or (nil, nil) when none exists.
	FindByRoutingKey(ctx context.Context, channelType, routingKey string) (*IntegrationRecord, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
}

// Message roles in a conversation thread.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Thread is a per-user conversation record. UpdatedAt is bumped on every
// append.
type Thread struct {
	ID        uuid.UUID
	TenantID  string
	UserID    string
	Channel   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MetaCitations is the ThreadMessage metadata key holding newline-joined
// compact citation lines for the timeline view.
const MetaCitations = "citations"

// ThreadMessage is one turn in a thread. ExternalMessageID is set on user
// turns and doubles as the duplicate-delivery check key.
type ThreadMessage struct {
	ID                uuid.UUID
	ThreadID          uuid.UUID
	Role              string
	Channel           string
	Content           string
	Confidence        *float64
	ExternalMessageID string
	Metadata          map[string]string
	CreatedAt         time.Time
}

// ThreadStore is the conversation persistence contract.
type ThreadStore interface {
	FindOrCreate(ctx context.Context, tenantID, userID, channel string) (*Thread, error)
	// Append stores a message and bumps the thread's UpdatedAt.
	Append(ctx context.Context, threadID uuid.UUID, msg *ThreadMessage) error
	// HasExternalMessage reports whether a message with the given external id
	// was already recorded for the tenant.
	HasExternalMessage(ctx context.Context, tenantID, externalMessageID string) (bool, error)
	// ListMessages returns the newest messages for a user across channels,
	// newest first, capped at limit.
	ListMessages(ctx context.Context, tenantID, userID string, limit int) ([]ThreadMessage, error)
}

// AuditRecord is a diagnostic append-only row. Query and response are
// truncated before storage; the audit log is not authoritative state.
type AuditRecord struct {
	ID         uuid.UUID
	Actor      string // tenant or user identity
	Action     string // e.g. "reply.sent", "reply.silenced", "integration.revoked"
	Channel    string
	Query      string
	Response   string
	Confidence *float64
	CreatedAt  time.Time
}

// AuditStore appends diagnostic records.
type AuditStore interface {
	Append(ctx context.Context, rec *AuditRecord) error
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

// DeadLetterRecord captures an event the pipeline could not process, with
// enough context for manual replay.
type DeadLetterRecord struct {
	ID             uuid.UUID
	TenantID       string // best effort, "unknown" when unresolved
	QueueMessageID string
	EventType      string
	Payload        []byte
	ErrorMessage   string
	ErrorStatus    *int
	CreatedAt      time.Time
	ReplayedAt     *time.Time
}

// DeadLetterStore persists unrecoverable failures.
type DeadLetterStore interface {
	Append(ctx context.Context, rec *DeadLetterRecord) error
	List(ctx context.Context, limit int) ([]DeadLetterRecord, error)
	Get(ctx context.Context, id uuid.UUID) (*DeadLetterRecord, error)
	MarkReplayed(ctx context.Context, id uuid.UUID) error
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

// Stores bundles all persistence collaborators.
type Stores struct {
	Integrations IntegrationStore
	Threads      ThreadStore
	Audit        AuditStore
	DeadLetters  DeadLetterStore

	// Closer releases the underlying database handle, set by the factory.
	Closer func() error
}

// Close releases the underlying database handle, if any.
func (s *Stores) Close() error {
	if s.Closer == nil {
		return nil
	}
	return s.Closer()
}

// auditTextLimit bounds query/response text stored in the audit log.
const auditTextLimit = 500

// TruncateForAudit clips text to the audit storage bound, never splitting
// a UTF-8 rune.
func TruncateForAudit(s string) string {
	if len(s) <= auditTextLimit {
		return s
	}
	cut := auditTextLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
