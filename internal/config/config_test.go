package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteDefaultThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Credentials.Storage != BackendKeyring {
		t.Errorf("expected default credential backend keyring, got %q", cfg.Credentials.Storage)
	}
	if cfg.Scheduling.PollInterval != 60 {
		t.Errorf("expected default poll_interval 60, got %d", cfg.Scheduling.PollInterval)
	}
	if cfg.Scheduling.MaxRetriesPerIteration != 10 {
		t.Errorf("expected default max_retries_per_iteration 10, got %d", cfg.Scheduling.MaxRetriesPerIteration)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("expected default log format text, got %q", cfg.LogFormat)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error loading missing config file")
	}
}

func TestLoadPlatformSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	contents := `
[database]
path = "` + filepath.Join(dir, "plurcast.db") + `"

[credentials]
storage = "encrypted"
path = "` + filepath.Join(dir, "credentials") + `"

[nostr]
enabled = true
character_limit = 0

[mastodon]
enabled = true
character_limit = 500

[defaults]
platforms = ["nostr", "mastodon"]

[scheduling]
poll_interval = 30
max_retries = 5
retry_delay = 120
startup_delay = 5
inter_retry_delay = 2
max_retries_per_iteration = 20

[scheduling.rate_limits]
nostr = { posts_per_hour = 50 }
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if !cfg.Platforms["nostr"].Enabled {
		t.Error("expected nostr platform enabled")
	}
	if cfg.Platforms["mastodon"].CharacterLimit != 500 {
		t.Errorf("expected mastodon character_limit 500, got %d", cfg.Platforms["mastodon"].CharacterLimit)
	}
	if got := cfg.RateLimitFor("nostr"); got != 50 {
		t.Errorf("expected configured nostr rate limit 50, got %d", got)
	}
	if got := cfg.RateLimitFor("mastodon"); got != 300 {
		t.Errorf("expected fallback mastodon rate limit 300, got %d", got)
	}
}

func TestDatabasePathEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error: %v", err)
	}

	override := filepath.Join(dir, "override.db")
	t.Setenv(DatabasePathEnvVar, override)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Path != override {
		t.Errorf("expected database path override %q, got %q", override, cfg.Database.Path)
	}
}
