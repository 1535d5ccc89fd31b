package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Silence.Threshold != 0.65 {
		t.Errorf("Silence.Threshold = %v, want 0.65", cfg.Silence.Threshold)
	}
	if cfg.Queue.MaxDeliveries != 5 {
		t.Errorf("Queue.MaxDeliveries = %d, want 5", cfg.Queue.MaxDeliveries)
	}
	if cfg.Answer.Timeout().Seconds() != 20 {
		t.Errorf("Answer.Timeout = %v, want 20s", cfg.Answer.Timeout())
	}
	if cfg.IsManagedMode() {
		t.Error("default config should not be managed mode")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 18820 {
		t.Errorf("Port = %d, want default", cfg.Server.Port)
	}
}

func TestLoad_FileWithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
	// tuned down for the test
	"silence": {"threshold": 0.5},
	"workers": {"count": 2},
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Silence.Threshold != 0.5 {
		t.Errorf("Threshold = %v, want 0.5", cfg.Silence.Threshold)
	}
	if cfg.Workers.Count != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Workers.Count)
	}
	// untouched sections keep defaults
	if cfg.Channels.Slack.APIBase != "https://slack.com/api" {
		t.Errorf("Slack.APIBase = %q", cfg.Channels.Slack.APIBase)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ANSWERGRID_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("ANSWERGRID_POSTGRES_DSN", "postgres://x")
	t.Setenv("ANSWERGRID_WORKERS", "9")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.WebhookSecret != "whsec_test" {
		t.Errorf("WebhookSecret = %q", cfg.Server.WebhookSecret)
	}
	if !cfg.IsManagedMode() {
		t.Error("DSN via env should flip managed mode on")
	}
	if cfg.Workers.Count != 9 {
		t.Errorf("Workers = %d, want 9", cfg.Workers.Count)
	}
}

func TestLoad_FilePinnedModeWinsOverDSN(t *testing.T) {
	t.Setenv("ANSWERGRID_POSTGRES_DSN", "postgres://x")
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"database": {"mode": "standalone"}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IsManagedMode() {
		t.Error("file-pinned standalone mode must not be flipped by a DSN env var")
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandHome("~/x.db"); got != filepath.Join(home, "x.db") {
		t.Errorf("ExpandHome = %q", got)
	}
	if got := ExpandHome("/abs/x.db"); got != "/abs/x.db" {
		t.Errorf("ExpandHome mangled absolute path: %q", got)
	}
}
