package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        18820,
			AckBudgetMS: 250,
		},
		Database: DatabaseConfig{
			Mode:       "standalone",
			SQLitePath: "~/.answergrid/answergrid.db",
		},
		Queue: QueueConfig{
			Stream:          "answergrid:events",
			Group:           "processor",
			MaxDeliveries:   5,
			ClaimMinIdleSec: 30,
		},
		Tenants: TenantsConfig{
			DefaultTenantID: "default",
			DefaultUserID:   "default",
			DedupTTLMin:     20,
		},
		Answer: AnswerConfig{
			Mode:       "qa",
			TimeoutSec: 20,
		},
		Silence: SilenceConfig{
			Threshold: 0.65,
			Reasoning: "I don't have enough grounding in the knowledge base to answer that confidently.",
			Suggestions: []string{
				"Try rephrasing the question with more specifics.",
				"Name the document or topic you are asking about.",
			},
		},
		Filter: FilterConfig{
			MentionTokens: []string{"@answergrid", "@bot"},
			SelfIDs:       []string{"answergrid"},
		},
		Channels: ChannelsConfig{
			Slack: SlackConfig{
				APIBase:         "https://slack.com/api",
				TypingIndicator: true,
				SendRatePerSec:  1,
			},
			WhatsApp: WhatsAppConfig{
				APIBase:        "https://graph.facebook.com/v19.0",
				SendRatePerSec: 1,
			},
		},
		Workers: WorkersConfig{Count: 4},
		Retention: RetentionConfig{
			Schedule:          "0 3 * * *",
			AuditMaxAgeDays:   90,
			DeadLetterAgeDays: 30,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "answergrid",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error; defaults + env apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	// Cleared so applyEnvOverrides can tell a file-pinned mode apart from
	// the default: a Postgres DSN via env flips managed mode on unless the
	// file says otherwise.
	cfg.Database.Mode = ""

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values; secrets exist only here.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("ANSWERGRID_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("ANSWERGRID_REDIS_ADDR", &c.Redis.Addr)
	envStr("ANSWERGRID_REDIS_PASSWORD", &c.Redis.Password)
	envStr("ANSWERGRID_WEBHOOK_SECRET", &c.Server.WebhookSecret)
	envStr("ANSWERGRID_API_TOKEN", &c.Server.APIToken)
	envStr("ANSWERGRID_ENCRYPTION_KEY", &c.Tenants.EncryptionKey)
	envStr("ANSWERGRID_ANSWER_URL", &c.Answer.BaseURL)
	envStr("ANSWERGRID_ANSWER_TOKEN", &c.Answer.Token)
	envStr("ANSWERGRID_SLACK_BOT_TOKEN", &c.Channels.Slack.BotToken)
	envStr("ANSWERGRID_WHATSAPP_TOKEN", &c.Channels.WhatsApp.AccessToken)

	if v := os.Getenv("ANSWERGRID_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workers.Count = n
		}
	}
	if c.Database.Mode == "" {
		if c.Database.PostgresDSN != "" {
			c.Database.Mode = "managed"
		} else {
			c.Database.Mode = "standalone"
		}
	}
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
