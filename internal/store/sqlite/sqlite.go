// Package sqlite provides the standalone-mode store implementations backed
// by a single local SQLite database. Schema is created on open; migrations
// are a managed-mode (Postgres) concern.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/answergrid/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS integrations (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	channel_type TEXT NOT NULL,
	routing_key TEXT NOT NULL,
	encrypted_credential TEXT,
	status TEXT NOT NULL DEFAULT 'active',
	mention_only INTEGER NOT NULL DEFAULT 0,
	mention_tokens TEXT NOT NULL DEFAULT '[]',
	persona TEXT,
	features TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_integrations_route ON integrations (channel_type, routing_key);

CREATE TABLE IF NOT EXISTS threads (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_threads_user ON threads (tenant_id, user_id, channel);

CREATE TABLE IF NOT EXISTS thread_messages (
	id TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL REFERENCES threads(id),
	role TEXT NOT NULL,
	channel TEXT NOT NULL,
	content TEXT NOT NULL,
	confidence REAL,
	external_message_id TEXT,
	metadata TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_messages_external ON thread_messages (external_message_id);

CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	channel TEXT NOT NULL,
	query TEXT,
	response TEXT,
	confidence REAL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS dead_letters (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	queue_message_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload BLOB,
	error_message TEXT NOT NULL,
	error_status INTEGER,
	created_at TIMESTAMP NOT NULL,
	replayed_at TIMESTAMP
);
`

// NewSQLiteStores opens (and if needed initializes) the standalone store.
func NewSQLiteStores(path string) (*store.Stores, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}

	return &store.Stores{
		Integrations: &IntegrationStore{db: db},
		Threads:      &ThreadStore{db: db},
		Audit:        &AuditStore{db: db},
		DeadLetters:  &DeadLetterStore{db: db},
		Closer:       db.Close,
	}, nil
}
