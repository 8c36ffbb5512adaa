package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/plurcast/plurcast/internal/config"
)

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	return &config.Config{
		Database:    config.DatabaseConfig{Path: filepath.Join(dir, "plurcast.db")},
		Credentials: config.CredentialsConfig{Storage: config.BackendPlain, Path: filepath.Join(dir, "credentials.jsonl")},
		Platforms: map[string]config.PlatformConfig{
			"nostr": {Enabled: true, Extra: map[string]string{"relay_urls": "wss://relay.example,wss://relay2.example", "pow_workers": "8"}},
		},
		Scheduling: config.SchedulingConfig{
			PollInterval: 60, MaxRetries: 3, RetryDelay: 300,
			InterRetryDelay: 5, MaxRetriesPerIteration: 10,
		},
	}
}

func TestBuildWiresEveryComponent(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := Build(cfg, logger)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	defer a.Close()

	if a.Store == nil || a.Credentials == nil || a.Accounts == nil || a.Platforms == nil || a.RateLimit == nil || a.Orchestrator == nil || a.Queue == nil {
		t.Fatal("Build() left a component nil")
	}

	for _, name := range []string{"nostr", "mastodon", "ssb"} {
		adapter, err := a.Platforms.New(name)
		if err != nil {
			t.Fatalf("Platforms.New(%q) error: %v", name, err)
		}
		if adapter.Name() != name {
			t.Fatalf("adapter.Name() = %q, want %q", adapter.Name(), name)
		}
	}
}

func TestBuildDispatcherAppliesSchedulingConfig(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := Build(cfg, logger)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	defer a.Close()

	d := a.BuildDispatcher("")
	if d == nil {
		t.Fatal("BuildDispatcher() returned nil")
	}
	// A single run against an empty queue should complete without error.
	if err := d.Run(context.Background(), true); err != nil {
		t.Fatalf("Run(once) error: %v", err)
	}
}

func TestSplitListOmitsEmptyElements(t *testing.T) {
	cases := map[string]int{"": 0, "a": 1, "a,b": 2, "a,,b": 2, "a,b,": 2}
	for input, want := range cases {
		if got := len(splitList(input)); got != want {
			t.Errorf("splitList(%q) has %d elements, want %d", input, got, want)
		}
	}
}
