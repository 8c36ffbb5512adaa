// Package app wires Plurcast's components together from a loaded Config:
// durable store, credential store, account registry, platform registry,
// rate limiter, orchestrator, and queue operations. Every cmd/ binary
// builds one App and drives it rather than re-deriving the wiring.
package app

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/plurcast/plurcast/internal/account"
	"github.com/plurcast/plurcast/internal/config"
	"github.com/plurcast/plurcast/internal/credential"
	"github.com/plurcast/plurcast/internal/dispatcher"
	"github.com/plurcast/plurcast/internal/orchestrator"
	"github.com/plurcast/plurcast/internal/queueops"
	"github.com/plurcast/plurcast/internal/ratelimit"
	"github.com/plurcast/plurcast/internal/store"
	"github.com/plurcast/plurcast/internal/telemetry"
	"github.com/plurcast/plurcast/pkg/platform"
	"github.com/plurcast/plurcast/pkg/platform/mastodon"
	"github.com/plurcast/plurcast/pkg/platform/nostr"
	"github.com/plurcast/plurcast/pkg/platform/ssb"
)

// App bundles every long-lived handle a binary needs. Global state is
// limited to these: the store, the credential store, and the logger
// (spec §9's "Global state" note).
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Store       *store.Store
	Credentials *credential.Store
	Accounts    *account.Registry
	Platforms   *platform.Registry
	RateLimit   *ratelimit.Limiter
	Orchestrator *orchestrator.Orchestrator
	Queue       *queueops.Ops
}

// Build opens every durable handle and wires the domain components for
// cfg. Callers must defer Close().
func Build(cfg *config.Config, logger *slog.Logger) (*App, error) {
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("app: opening store: %w", err)
	}

	creds, err := credential.Open(cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("app: opening credential store: %w", err)
	}

	accounts := account.New(st, creds)
	registry := buildPlatformRegistry(cfg)
	rateWindow := time.Hour
	limiter := ratelimit.New(st, rateWindow)
	orch := orchestrator.New(st, accounts, creds, registry, limiter, logger)
	queue := queueops.New(st)

	return &App{
		Config: cfg, Logger: logger, Store: st, Credentials: creds,
		Accounts: accounts, Platforms: registry, RateLimit: limiter,
		Orchestrator: orch, Queue: queue,
	}, nil
}

// Close releases every durable handle the App opened.
func (a *App) Close() error {
	return a.Store.Close()
}

// buildPlatformRegistry registers a factory for every platform adapter
// Plurcast ships, regardless of whether the user has enabled it in
// config — IsConfigured() on the resulting adapter is what actually
// gates usability (spec §4.4).
func buildPlatformRegistry(cfg *config.Config) *platform.Registry {
	reg := platform.NewRegistry()

	nostrCfg := nostr.Config{}
	if pc, ok := cfg.Platforms["nostr"]; ok {
		nostrCfg.RelayURLs = splitList(pc.Extra["relay_urls"])
		if workers, ok := pc.Extra["pow_workers"]; ok {
			if n, err := strconv.Atoi(workers); err == nil {
				nostrCfg.PowWorkers = n
			}
		}
	}
	reg.Register("nostr", nostr.NewFactory(nostrCfg))

	mastodonCfg := mastodon.Config{}
	if pc, ok := cfg.Platforms["mastodon"]; ok {
		mastodonCfg.InstanceURL = pc.Extra["instance_url"]
		mastodonCfg.CharacterLimit = pc.CharacterLimit
	}
	reg.Register("mastodon", mastodon.NewFactory(mastodonCfg))

	ssbCfg := ssb.Config{}
	if pc, ok := cfg.Platforms["ssb"]; ok {
		ssbCfg.GatewayURL = pc.Extra["gateway_url"]
	}
	reg.Register("ssb", ssb.NewFactory(ssbCfg))

	return reg
}

// splitList splits a comma-separated config string; empty input yields
// a nil slice rather than a one-element slice containing "".
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// BuildDispatcher wires a Dispatcher from an already-built App and the
// scheduling section of cfg (spec §4.8).
func (a *App) BuildDispatcher(metricsAddr string) *dispatcher.Dispatcher {
	sched := a.Config.Scheduling
	cfg := dispatcher.Config{
		PollInterval:           time.Duration(sched.PollInterval) * time.Second,
		StartupDelay:           time.Duration(sched.StartupDelay) * time.Second,
		MaxRetries:             sched.MaxRetries,
		RetryDelay:             time.Duration(sched.RetryDelay) * time.Second,
		InterRetryDelay:        time.Duration(sched.InterRetryDelay) * time.Second,
		MaxRetriesPerIteration: sched.MaxRetriesPerIteration,
		RateLimitFor:           a.Config.RateLimitFor,
		MetricsAddr:            metricsAddr,
	}
	d := dispatcher.New(a.Store, a.Orchestrator, a.RateLimit, a.Logger, cfg)
	if metricsAddr != "" {
		reg := telemetry.NewRegistry(telemetry.All()...)
		d = d.WithMetrics(reg)
	}
	return d
}
