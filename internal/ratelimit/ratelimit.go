// Package ratelimit implements the fixed-window Rate Limiter (spec §4.6),
// backed by the shared SQLite store rather than a separate broker.
package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/plurcast/plurcast/internal/store"
)

// Limiter enforces a per-platform post count within a fixed time window.
type Limiter struct {
	store  *store.Store
	window time.Duration
}

func New(s *store.Store, window time.Duration) *Limiter {
	return &Limiter{store: s, window: window}
}

// Result is the outcome of a CheckAndRecord call.
type Result struct {
	Allowed   bool
	Remaining int
	RetryAt   time.Time
}

// windowStart floors t to the start of its fixed window.
func (l *Limiter) windowStart(t time.Time) int64 {
	sec := l.window.Seconds()
	if sec <= 0 {
		sec = 1
	}
	unix := t.Unix()
	return unix - (unix % int64(sec))
}

// CheckAndRecord atomically checks whether platform is under limit within
// the current window and, if so, records one more post against it (spec
// §4.6 steps 2-4, run inside one SQLite transaction).
func (l *Limiter) CheckAndRecord(ctx context.Context, platform string, limit int, now time.Time) (Result, error) {
	var result Result

	err := l.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		ws := l.windowStart(now)

		var count int
		err := tx.GetContext(ctx, &count, `
			SELECT post_count FROM rate_limit_windows WHERE platform = ? AND window_start = ?
		`, platform, ws)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("reading rate limit window: %w", err)
		}

		if count >= limit {
			result = Result{
				Allowed:   false,
				Remaining: 0,
				RetryAt:   time.Unix(ws, 0).Add(l.window),
			}
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO rate_limit_windows (platform, window_start, post_count)
			VALUES (?, ?, 1)
			ON CONFLICT (platform, window_start) DO UPDATE SET post_count = post_count + 1
		`, platform, ws)
		if err != nil {
			return fmt.Errorf("recording rate limit window: %w", err)
		}

		result = Result{Allowed: true, Remaining: limit - count - 1}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// Record unconditionally increments platform's current window count,
// without checking it against any limit. Used by the Orchestrator after
// a successful post (spec §4.7 step 6); enforcement itself happens
// earlier, in the Dispatcher's pre-dispatch CheckAndRecord call.
func (l *Limiter) Record(ctx context.Context, platform string, now time.Time) error {
	ws := l.windowStart(now)
	_, err := l.store.DB.ExecContext(ctx, `
		INSERT INTO rate_limit_windows (platform, window_start, post_count)
		VALUES (?, ?, 1)
		ON CONFLICT (platform, window_start) DO UPDATE SET post_count = post_count + 1
	`, platform, ws)
	if err != nil {
		return fmt.Errorf("ratelimit: recording usage: %w", err)
	}
	return nil
}

// Cleanup deletes rate-limit windows older than retention, preventing
// unbounded growth of rate_limit_windows (spec §4.6's periodic cleanup).
func (l *Limiter) Cleanup(ctx context.Context, now time.Time, retention time.Duration) error {
	cutoff := now.Add(-retention).Unix()
	_, err := l.store.DB.ExecContext(ctx, `DELETE FROM rate_limit_windows WHERE window_start < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("ratelimit: cleaning up windows: %w", err)
	}
	return nil
}
