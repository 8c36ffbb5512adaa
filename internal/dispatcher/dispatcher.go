// Package dispatcher implements the Dispatcher Daemon: a polling loop that
// finds due scheduled posts and retry-eligible failed posts and hands them
// back to the Posting Orchestrator, never posting directly itself (spec
// §4.8). Its Run/tick split and signal-driven shutdown are grounded on the
// teacher's escalation.Engine and cmd/nightowl/main.go.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/plurcast/plurcast/internal/orchestrator"
	"github.com/plurcast/plurcast/internal/ratelimit"
	"github.com/plurcast/plurcast/internal/store"
	"github.com/plurcast/plurcast/internal/telemetry"
)

// Config controls polling cadence and retry bookkeeping (spec §4.8,
// layered from `[scheduling]`).
type Config struct {
	PollInterval           time.Duration
	StartupDelay           time.Duration
	MaxRetries             int
	RetryDelay             time.Duration
	InterRetryDelay        time.Duration
	MaxRetriesPerIteration int
	RateLimitFor           func(platform string) int
	MetricsAddr            string
}

// Dispatcher is the daemon's state: store, orchestrator, and rate limiter.
type Dispatcher struct {
	store    *store.Store
	orch     *orchestrator.Orchestrator
	rate     *ratelimit.Limiter
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)
	metricsReg *prometheus.Registry
}

func New(s *store.Store, orch *orchestrator.Orchestrator, rate *ratelimit.Limiter, logger *slog.Logger, cfg Config) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 300 * time.Second
	}
	if cfg.InterRetryDelay <= 0 {
		cfg.InterRetryDelay = 5 * time.Second
	}
	if cfg.MaxRetriesPerIteration <= 0 {
		cfg.MaxRetriesPerIteration = 10
	}
	if cfg.RateLimitFor == nil {
		cfg.RateLimitFor = func(string) int { return 60 }
	}
	return &Dispatcher{
		store: s, orch: orch, rate: rate, logger: logger, cfg: cfg,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Run drives the INIT → STARTING → STARTUP_DELAY → POLLING ⇄ PROCESSING →
// SHUTTING_DOWN → EXIT state machine until ctx is cancelled. If once is
// true, it runs a single iteration (skipping the startup delay) and
// returns, for `--once` mode and tests.
func (d *Dispatcher) Run(ctx context.Context, once bool) error {
	d.logger.Info("dispatcher starting", "poll_interval", d.cfg.PollInterval, "once", once)

	if d.cfg.MetricsAddr != "" && d.metricsReg != nil {
		srv := newDebugServer(d.cfg.MetricsAddr, d.metricsReg, d.logger)
		go serveDebug(ctx, srv, d.logger)
	}

	if once {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher shutting down")
			return nil
		default:
		}
		return d.tick(ctx)
	}

	if d.cfg.StartupDelay > 0 {
		d.logger.Info("startup delay", "duration", d.cfg.StartupDelay)
		d.sleep(ctx, d.cfg.StartupDelay)
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher shutting down")
			return nil
		default:
		}

		if err := d.tick(ctx); err != nil {
			d.logger.Error("dispatcher tick", "error", err)
		}
		telemetry.DispatcherIterationsTotal.Inc()

		d.sleep(ctx, d.cfg.PollInterval)
	}
}

// WithMetrics attaches a prometheus registry for the debug endpoint.
func (d *Dispatcher) WithMetrics(reg *prometheus.Registry) *Dispatcher {
	d.metricsReg = reg
	return d
}

// tick performs one polling iteration: due scheduled posts first (ordered
// by scheduled_at), then retry-eligible failed posts (ordered by oldest
// last_retry_at), capped at MaxRetriesPerIteration (spec §4.8 steps 1-3).
func (d *Dispatcher) tick(ctx context.Context) error {
	now := d.now()

	due, err := d.store.DueScheduledPosts(ctx, now.Unix())
	if err != nil {
		return fmt.Errorf("dispatcher: listing due scheduled posts: %w", err)
	}
	retries, err := d.store.RetryEligibleFailedPosts(ctx, now.Unix(), d.cfg.MaxRetries, int(d.cfg.RetryDelay.Seconds()), d.cfg.MaxRetriesPerIteration)
	if err != nil {
		return fmt.Errorf("dispatcher: listing retry-eligible posts: %w", err)
	}

	telemetry.DispatcherQueueDepth.WithLabelValues("scheduled").Set(float64(len(due)))
	telemetry.DispatcherQueueDepth.WithLabelValues("retry").Set(float64(len(retries)))

	for _, post := range due {
		if !d.processOne(ctx, post, false) {
			return nil
		}
	}
	for _, post := range retries {
		if !d.processOne(ctx, post, true) {
			return nil
		}
	}

	return nil
}

// processOne processes a single candidate and sleeps InterRetryDelay
// afterward. It returns false when ctx was cancelled, signaling tick to
// stop starting new posts (spec §4.8's graceful-shutdown contract: finish
// the current post, don't start new ones).
func (d *Dispatcher) processOne(ctx context.Context, post store.Post, isRetry bool) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}

	if err := d.processPost(ctx, post, isRetry); err != nil {
		d.logger.Error("dispatcher processing post", "post_id", post.ID, "error", err)
	}

	d.sleep(ctx, d.cfg.InterRetryDelay)
	return true
}

// processPost resolves the post's target platforms, filters out any that
// would exceed their rate limit, and hands the rest to
// Orchestrator.Retry. A platform skipped here is simply absent from this
// iteration's dispatch; it remains eligible on the next poll.
func (d *Dispatcher) processPost(ctx context.Context, post store.Post, isRetry bool) error {
	meta, err := store.DecodeMetadata(post.Metadata)
	if err != nil {
		return fmt.Errorf("decoding metadata for %s: %w", post.ID, err)
	}

	var allowed []string
	for _, platformName := range meta.Platforms {
		limit := d.cfg.RateLimitFor(platformName)
		result, err := d.rate.CheckAndRecord(ctx, platformName, limit, d.now())
		if err != nil {
			d.logger.Error("checking rate limit", "platform", platformName, "error", err)
			continue
		}
		if !result.Allowed {
			telemetry.RateLimitRejectionsTotal.WithLabelValues(platformName).Inc()
			d.logger.Warn("skipping platform this iteration: rate limit would be exceeded", "post_id", post.ID, "platform", platformName)
			continue
		}
		allowed = append(allowed, platformName)
	}

	if len(allowed) == 0 {
		return nil
	}

	resp, err := d.orch.Retry(ctx, post, allowed)
	if err != nil {
		return fmt.Errorf("dispatching %s: %w", post.ID, err)
	}
	for _, r := range resp.PerPlatform {
		outcome := "failure"
		if r.Success {
			outcome = "success"
		}
		telemetry.PostsDispatchedTotal.WithLabelValues(r.Platform, outcome).Inc()
		if isRetry {
			telemetry.PostRetriesTotal.WithLabelValues(r.Platform).Inc()
		}
	}
	return nil
}
