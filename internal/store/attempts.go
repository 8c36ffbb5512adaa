package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// InsertAttempt records one Attempt Record inside an existing transaction
// (spec §4.7 step 8: "one Attempt Record per platform, in one transaction
// with the Post status update").
func InsertAttempt(ctx context.Context, tx sqlx.ExtContext, a PostAttempt) error {
	_, err := sqlx.NamedExecContext(ctx, tx, `
		INSERT INTO post_attempts
			(post_id, platform, account_name, platform_post_id, posted_at, success, error_message, retry_count, last_retry_at)
		VALUES
			(:post_id, :platform, :account_name, :platform_post_id, :posted_at, :success, :error_message, :retry_count, :last_retry_at)
	`, a)
	if err != nil {
		return fmt.Errorf("store: inserting attempt for post %s/%s: %w", a.PostID, a.Platform, err)
	}
	return nil
}

// ListAttemptsForPost returns every attempt recorded for a post.
func (s *Store) ListAttemptsForPost(ctx context.Context, postID string) ([]PostAttempt, error) {
	var attempts []PostAttempt
	err := s.DB.SelectContext(ctx, &attempts, `
		SELECT * FROM post_attempts WHERE post_id = ? ORDER BY id ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("store: listing attempts for post %s: %w", postID, err)
	}
	return attempts, nil
}

// AttemptsSince returns successful attempts for platform posted at or after
// since (unix seconds), newest first.
func (s *Store) AttemptsSince(ctx context.Context, platform string, since int64) ([]PostAttempt, error) {
	var attempts []PostAttempt
	err := s.DB.SelectContext(ctx, &attempts, `
		SELECT * FROM post_attempts WHERE platform = ? AND posted_at >= ? ORDER BY posted_at DESC
	`, platform, since)
	if err != nil {
		return nil, fmt.Errorf("store: listing attempts since %d for %s: %w", since, platform, err)
	}
	return attempts, nil
}

// WithTx runs fn inside a single SQLite transaction, committing on success
// and rolling back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(tx)
	return err
}
