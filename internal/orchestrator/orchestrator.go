// Package orchestrator implements the Posting Orchestrator: the
// synchronous composer of credential resolution, validation, concurrent
// fan-out, retry, and attempt recording (spec §4.7).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/plurcast/plurcast/internal/account"
	"github.com/plurcast/plurcast/internal/credential"
	"github.com/plurcast/plurcast/internal/ratelimit"
	"github.com/plurcast/plurcast/internal/store"
	"github.com/plurcast/plurcast/pkg/platform"
)

// ErrInvalidInput is returned for content that fails the universal
// size/emptiness check (spec §4.7 step 1) before anything is persisted.
var ErrInvalidInput = errors.New("orchestrator: invalid input")

// MaxContentBytes is the universal content size limit, measured after
// trimming (spec §4.7 step 1, §8's boundary behavior).
const MaxContentBytes = 100_000

// MaxAttempts is the total number of adapter.Post calls per platform,
// including the first (spec §4.7 step 6).
const MaxAttempts = 3

// Request is the Orchestrator's input contract (spec §4.7).
type Request struct {
	Content         string
	Platforms       []string
	AccountOverride string
	Draft           bool
	ScheduledAt     *time.Time
	Hints           platform.Hints
}

// PlatformResult is one platform's outcome in a Response.
type PlatformResult struct {
	Platform       string
	Account        string
	Success        bool
	PlatformPostID string
	ErrorClass     string
	ErrorMessage   string
}

// Response is the Orchestrator's output contract.
type Response struct {
	PostID     string
	PerPlatform []PlatformResult
}

// Orchestrator wires the durable store, account registry, credential
// store, platform registry, and rate limiter together.
type Orchestrator struct {
	store      *store.Store
	accounts   *account.Registry
	creds      *credential.Store
	platforms  *platform.Registry
	rateLimit  *ratelimit.Limiter
	logger     *slog.Logger
	idGen      func() string
	now        func() time.Time
	adapterDeadline time.Duration
	backoff    func(attempt int) time.Duration
}

// Option customizes a newly constructed Orchestrator.
type Option func(*Orchestrator)

// WithIDGenerator overrides Post ID generation (for deterministic tests).
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) { o.idGen = f }
}

// WithClock overrides the orchestrator's notion of "now" (for tests).
func WithClock(f func() time.Time) Option {
	return func(o *Orchestrator) { o.now = f }
}

// WithAdapterDeadline bounds every adapter call (spec §5's per-call
// deadline); default 30s.
func WithAdapterDeadline(d time.Duration) Option {
	return func(o *Orchestrator) { o.adapterDeadline = d }
}

// WithBackoff overrides the per-attempt retry delay function (spec §4.7
// step 6's exponential backoff); default is 2^(attempt-2) seconds,
// starting before the 2nd attempt. Tests substitute a zero-delay
// function to avoid real sleeping.
func WithBackoff(f func(attempt int) time.Duration) Option {
	return func(o *Orchestrator) { o.backoff = f }
}

func New(s *store.Store, accounts *account.Registry, creds *credential.Store, platforms *platform.Registry, rl *ratelimit.Limiter, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     s,
		accounts:  accounts,
		creds:     creds,
		platforms: platforms,
		rateLimit: rl,
		logger:    logger,
		idGen:     func() string { return uuid.NewString() },
		now:       time.Now,
		adapterDeadline: 30 * time.Second,
		backoff:   func(attempt int) time.Duration { return time.Duration(1<<(attempt-2)) * time.Second },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Post runs the full Orchestrator contract for a new request (spec §4.7
// steps 1-9).
func (o *Orchestrator) Post(ctx context.Context, req Request) (*Response, error) {
	content, err := validateContent(req.Content)
	if err != nil {
		return nil, err
	}

	now := o.now()
	postID := o.idGen()

	if req.Draft && req.ScheduledAt != nil {
		return nil, fmt.Errorf("%w: draft and scheduled_at are mutually exclusive", ErrInvalidInput)
	}

	if req.Draft {
		meta, err := store.EncodeMetadata(store.PostMetadata{Platforms: req.Platforms, AccountOverride: req.AccountOverride, Hints: req.Hints})
		if err != nil {
			return nil, fmt.Errorf("orchestrator: encoding draft metadata: %w", err)
		}
		p := store.Post{ID: postID, Content: content, CreatedAt: now.Unix(), Status: string(store.StatusDraft), Metadata: &meta}
		if err := o.store.InsertPost(ctx, p); err != nil {
			return nil, fmt.Errorf("orchestrator: persisting draft: %w", err)
		}
		return &Response{PostID: postID}, nil
	}

	if req.ScheduledAt != nil {
		if !req.ScheduledAt.After(now) {
			return nil, fmt.Errorf("%w: scheduled_at must be after now", ErrInvalidInput)
		}
		meta, err := store.EncodeMetadata(store.PostMetadata{Platforms: req.Platforms, AccountOverride: req.AccountOverride, Hints: req.Hints})
		if err != nil {
			return nil, fmt.Errorf("orchestrator: encoding scheduled metadata: %w", err)
		}
		scheduledAt := req.ScheduledAt.Unix()
		p := store.Post{
			ID: postID, Content: content, CreatedAt: now.Unix(), ScheduledAt: &scheduledAt,
			Status: string(store.StatusScheduled), Metadata: &meta,
		}
		if err := o.store.InsertPost(ctx, p); err != nil {
			return nil, fmt.Errorf("orchestrator: persisting scheduled post: %w", err)
		}
		return &Response{PostID: postID}, nil
	}

	units, preResults := o.prevalidate(ctx, req.Platforms, req.AccountOverride, content, req.Hints)

	meta, err := store.EncodeMetadata(store.PostMetadata{Platforms: req.Platforms, AccountOverride: req.AccountOverride, Hints: req.Hints})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: encoding metadata: %w", err)
	}
	pending := store.Post{ID: postID, Content: content, CreatedAt: now.Unix(), Status: string(store.StatusPending), Metadata: &meta}
	if err := o.store.InsertPost(ctx, pending); err != nil {
		return nil, fmt.Errorf("orchestrator: persisting pending post: %w", err)
	}

	dispatched := o.fanOut(ctx, content, req.Hints, units, true)

	allResults := append(preResults, dispatched...)
	if err := o.record(ctx, postID, allResults, nil); err != nil {
		return nil, err
	}

	return &Response{PostID: postID, PerPlatform: allResults}, nil
}

// validateContent trims content and enforces the universal size bound.
func validateContent(raw string) (string, error) {
	trimmed := trim(raw)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("%w: content must not be empty", ErrInvalidInput)
	}
	if len(trimmed) > MaxContentBytes {
		return "", fmt.Errorf("%w: content is %d bytes, limit is %d", ErrInvalidInput, len(trimmed), MaxContentBytes)
	}
	return trimmed, nil
}

func trim(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

// record persists all per-platform Attempt Records and the final Post
// status in one transaction (spec §4.7 step 8). If metadata is non-nil
// it is written alongside the status update (used by Retry to update
// retry bookkeeping).
func (o *Orchestrator) record(ctx context.Context, postID string, results []PlatformResult, metadata *string) error {
	anySuccess := false
	for _, r := range results {
		if r.Success {
			anySuccess = true
			break
		}
	}
	finalStatus := store.StatusFailed
	if anySuccess {
		finalStatus = store.StatusPosted
	}

	return o.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, r := range results {
			var platformPostID *string
			if r.PlatformPostID != "" {
				platformPostID = &r.PlatformPostID
			}
			var errMsg *string
			if r.ErrorMessage != "" {
				errMsg = &r.ErrorMessage
			}
			attempt := store.PostAttempt{
				PostID: postID, Platform: r.Platform, AccountName: r.Account,
				PlatformPostID: platformPostID, Success: r.Success, ErrorMessage: errMsg,
			}
			if r.Success {
				now := o.now().Unix()
				attempt.PostedAt = &now
			}
			if err := store.InsertAttempt(ctx, tx, attempt); err != nil {
				return err
			}
		}
		return o.store.UpdatePostStatus(ctx, tx, postID, finalStatus, metadata)
	})
}
