// Package config holds the root configuration for the answergrid service.
// Settings load from a JSON5 file with env-var overlay; secrets (DSNs,
// tokens, keys) come from the environment only and are never written back.
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Redis     RedisConfig     `json:"redis,omitempty"`
	Queue     QueueConfig     `json:"queue,omitempty"`
	Tenants   TenantsConfig   `json:"tenants"`
	Answer    AnswerConfig    `json:"answer"`
	Silence   SilenceConfig   `json:"silence"`
	Filter    FilterConfig    `json:"filter"`
	Channels  ChannelsConfig  `json:"channels"`
	Workers   WorkersConfig   `json:"workers,omitempty"`
	Retention RetentionConfig `json:"retention,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// ServerConfig configures the webhook receiver + API listener.
type ServerConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	WebhookSecret string `json:"-"` // env ANSWERGRID_WEBHOOK_SECRET only
	APIToken      string `json:"-"` // env ANSWERGRID_API_TOKEN only
	// AckBudgetMS is the soft latency budget for a webhook ack; exceeding
	// it logs a warning.
	AckBudgetMS int `json:"ack_budget_ms,omitempty"`
}

// AckBudget returns the webhook ack latency budget.
func (s ServerConfig) AckBudget() time.Duration {
	if s.AckBudgetMS <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(s.AckBudgetMS) * time.Millisecond
}

// DatabaseConfig selects standalone (SQLite) or managed (Postgres) mode.
// PostgresDSN is NEVER read from the config file (secret) — env only.
type DatabaseConfig struct {
	Mode        string `json:"mode,omitempty"`        // "standalone" (default) or "managed"
	SQLitePath  string `json:"sqlite_path,omitempty"` // standalone DB location
	PostgresDSN string `json:"-"`                     // from env ANSWERGRID_POSTGRES_DSN only
}

// IsManagedMode reports whether the service runs against Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// RedisConfig configures the shared queue + dedup backend. When Addr is
// empty the service falls back to in-process queue and dedup (single
// instance only).
type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	DB       int    `json:"db,omitempty"`
	Password string `json:"-"` // env ANSWERGRID_REDIS_PASSWORD only
}

// QueueConfig tunes the event stream.
type QueueConfig struct {
	Stream          string `json:"stream,omitempty"`
	Group           string `json:"group,omitempty"`
	MaxDeliveries   int    `json:"max_deliveries,omitempty"`     // default 5
	ClaimMinIdleSec int    `json:"claim_min_idle_sec,omitempty"` // default 30
}

// TenantsConfig holds the documented default-tenant fallback used when no
// integration matches a routing key, and the credential encryption key.
type TenantsConfig struct {
	DefaultTenantID string `json:"default_tenant_id"`
	DefaultUserID   string `json:"default_user_id"`
	EncryptionKey   string `json:"-"`                       // env ANSWERGRID_ENCRYPTION_KEY only
	DedupTTLMin     int    `json:"dedup_ttl_min,omitempty"` // default 20
}

// AnswerConfig points at the answer-generation backend.
type AnswerConfig struct {
	BaseURL    string `json:"base_url"`
	Mode       string `json:"mode,omitempty"`        // query mode flag passed through
	TimeoutSec int    `json:"timeout_sec,omitempty"` // default 20, recommended 10-30
	Token      string `json:"-"`                     // internal trust header, env ANSWERGRID_ANSWER_TOKEN only
}

// Timeout returns the backend call timeout.
func (a AnswerConfig) Timeout() time.Duration {
	if a.TimeoutSec <= 0 {
		return 20 * time.Second
	}
	return time.Duration(a.TimeoutSec) * time.Second
}

// SilenceConfig tunes the confidence gate. Threshold is intentionally a
// separate knob from the citation tier boundaries.
type SilenceConfig struct {
	Threshold   float64  `json:"threshold,omitempty"` // default 0.65
	Reasoning   string   `json:"reasoning,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// FilterConfig tunes the mention / self-loop filter.
type FilterConfig struct {
	// MentionTokens are the globally accepted mention prefixes (per-tenant
	// tokens come from the integration record).
	MentionTokens []string `json:"mention_tokens,omitempty"`
	// SelfIDs are the service's own bot identities, matched case-insensitively
	// against sender id and display name.
	SelfIDs []string `json:"self_ids,omitempty"`
}

// ChannelsConfig configures outbound senders.
type ChannelsConfig struct {
	Slack    SlackConfig    `json:"slack,omitempty"`
	WhatsApp WhatsAppConfig `json:"whatsapp,omitempty"`
}

// SlackConfig is the group-collaboration channel. BotToken is the platform
// default credential, used when a tenant has none of its own.
type SlackConfig struct {
	APIBase         string `json:"api_base,omitempty"` // default https://slack.com/api
	BotToken        string `json:"-"`                  // env ANSWERGRID_SLACK_BOT_TOKEN only
	TypingIndicator bool   `json:"typing_indicator,omitempty"`
	SendRatePerSec  int    `json:"send_rate_per_sec,omitempty"` // per routing key, default 1
}

// WhatsAppConfig is the phone-messaging channel (Cloud API).
type WhatsAppConfig struct {
	APIBase        string `json:"api_base,omitempty"` // default https://graph.facebook.com/v19.0
	AccessToken    string `json:"-"`                  // env ANSWERGRID_WHATSAPP_TOKEN only
	SendRatePerSec int    `json:"send_rate_per_sec,omitempty"`
}

// WorkersConfig sizes the event processor pool.
type WorkersConfig struct {
	Count int `json:"count,omitempty"` // default 4
}

// RetentionConfig drives the scheduled pruning of diagnostic records.
type RetentionConfig struct {
	Schedule          string `json:"schedule,omitempty"` // cron expression, default "0 3 * * *"
	AuditMaxAgeDays   int    `json:"audit_max_age_days,omitempty"`
	DeadLetterAgeDays int    `json:"dead_letter_age_days,omitempty"`
}

// TelemetryConfig configures OpenTelemetry export. When enabled, a span is
// exported per processed event to an OTLP-compatible backend.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"` // e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}
