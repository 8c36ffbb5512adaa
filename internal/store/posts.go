package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
)

// InsertPost inserts a new Post row and returns only an error; the caller
// generates the ID (spec §3: "opaque unique identifier (UUID-shaped
// string)") so it can be returned to the caller before the transaction
// commits in callers that need it immediately (e.g. draft/scheduled
// branches of the Orchestrator, which never open a wider transaction).
func (s *Store) InsertPost(ctx context.Context, p Post) error {
	_, err := s.DB.NamedExecContext(ctx, `
		INSERT INTO posts (id, content, created_at, scheduled_at, status, metadata)
		VALUES (:id, :content, :created_at, :scheduled_at, :status, :metadata)
	`, p)
	if err != nil {
		return fmt.Errorf("store: inserting post %s: %w", p.ID, err)
	}
	return nil
}

// GetPost fetches a single post by ID.
func (s *Store) GetPost(ctx context.Context, id string) (*Post, error) {
	var p Post
	err := s.DB.GetContext(ctx, &p, `SELECT * FROM posts WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: getting post %s: %w", id, err)
	}
	return &p, nil
}

// UpdatePostStatus updates a post's status (and, if non-nil, its metadata)
// in place. Used by the Orchestrator's final recording step.
func (s *Store) UpdatePostStatus(ctx context.Context, execer sqlx.ExtContext, id string, status PostStatus, metadata *string) error {
	_, err := sqlx.NamedExecContext(ctx, execer, `
		UPDATE posts SET status = :status, metadata = COALESCE(:metadata, metadata) WHERE id = :id
	`, map[string]any{"status": string(status), "metadata": metadata, "id": id})
	if err != nil {
		return fmt.Errorf("store: updating post %s status: %w", id, err)
	}
	return nil
}

// UpdatePostSchedule updates scheduled_at for a post still in status
// 'scheduled' (Queue Operations' reschedule).
func (s *Store) UpdatePostSchedule(ctx context.Context, id string, scheduledAt int64) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE posts SET scheduled_at = ? WHERE id = ? AND status = 'scheduled'
	`, scheduledAt, id)
	if err != nil {
		return false, fmt.Errorf("store: rescheduling post %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: checking reschedule result for %s: %w", id, err)
	}
	return n > 0, nil
}

// PromotePost sets scheduled_at to now and status to 'scheduled', iff the
// post is currently scheduled or failed, so the Dispatcher's next
// DueScheduledPosts poll picks it up immediately (spec §4.9 "now"
// operation: "the next daemon iteration ... will pick it up").
func (s *Store) PromotePost(ctx context.Context, id string, now int64) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE posts SET status = 'scheduled', scheduled_at = ?
		WHERE id = ? AND status IN ('scheduled', 'failed')
	`, now, id)
	if err != nil {
		return false, fmt.Errorf("store: promoting post %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: checking promote result for %s: %w", id, err)
	}
	return n > 0, nil
}

// DeletePost deletes a post (and cascades to its attempts) iff its status
// is in {scheduled, draft, failed} (spec §4.9 cancel). Returns whether a
// row was deleted.
func (s *Store) DeletePost(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM posts WHERE id = ? AND status IN ('scheduled', 'draft', 'failed')
	`, id)
	if err != nil {
		return false, fmt.Errorf("store: cancelling post %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: checking cancel result for %s: %w", id, err)
	}
	return n > 0, nil
}

// ListPosts returns posts filtered by status and/or platform (platform
// filtering requires a join against post_attempts), ordered per spec §4.9:
// scheduled_at ascending for scheduled posts, created_at descending
// otherwise.
func (s *Store) ListPosts(ctx context.Context, statusFilter, platformFilter string) ([]Post, error) {
	query := `SELECT DISTINCT p.* FROM posts p`
	args := []any{}
	var where []string

	if platformFilter != "" {
		query += ` JOIN post_attempts pa ON pa.post_id = p.id`
		where = append(where, `pa.platform = ?`)
		args = append(args, platformFilter)
	}
	if statusFilter != "" {
		where = append(where, `p.status = ?`)
		args = append(args, statusFilter)
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	if statusFilter == string(StatusScheduled) {
		query += ` ORDER BY p.scheduled_at ASC`
	} else {
		query += ` ORDER BY p.created_at DESC`
	}

	var posts []Post
	if err := s.DB.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, fmt.Errorf("store: listing posts: %w", err)
	}
	return posts, nil
}

// DueScheduledPosts returns posts with status='scheduled' and
// scheduled_at <= now (spec §4.8 step 1).
func (s *Store) DueScheduledPosts(ctx context.Context, now int64) ([]Post, error) {
	var posts []Post
	err := s.DB.SelectContext(ctx, &posts, `
		SELECT * FROM posts WHERE status = 'scheduled' AND scheduled_at <= ?
		ORDER BY scheduled_at ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("store: listing due scheduled posts: %w", err)
	}
	return posts, nil
}

// RetryEligibleFailedPosts returns posts with status='failed' whose retry
// bookkeeping (in metadata) says they're eligible again — retry_count <
// maxRetries and last_retry_at + retryDelay <= now (spec §4.8 step 2) —
// capped at limit rows, ordered oldest-last_retry_at first.
func (s *Store) RetryEligibleFailedPosts(ctx context.Context, now int64, maxRetries, retryDelay, limit int) ([]Post, error) {
	var candidates []Post
	err := s.DB.SelectContext(ctx, &candidates, `
		SELECT * FROM posts WHERE status = 'failed' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: listing failed posts: %w", err)
	}

	type scored struct {
		post      Post
		lastRetry int64
	}
	var eligible []scored
	for _, p := range candidates {
		meta, err := DecodeMetadata(p.Metadata)
		if err != nil {
			continue
		}
		if meta.RetryCount >= maxRetries {
			continue
		}
		lastRetry := int64(0)
		if meta.LastRetryAt != nil {
			lastRetry = *meta.LastRetryAt
		}
		if lastRetry+int64(retryDelay) > now {
			continue
		}
		eligible = append(eligible, scored{post: p, lastRetry: lastRetry})
	}

	sort.Slice(eligible, func(i, j int) bool { return eligible[i].lastRetry < eligible[j].lastRetry })

	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	out := make([]Post, len(eligible))
	for i, e := range eligible {
		out[i] = e.post
	}
	return out, nil
}

// DecodeMetadata parses a post's metadata JSON, returning a zero-value
// PostMetadata when metadata is nil or unparseable.
func DecodeMetadata(raw *string) (PostMetadata, error) {
	var m PostMetadata
	if raw == nil || *raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(*raw), &m); err != nil {
		return m, fmt.Errorf("store: decoding post metadata: %w", err)
	}
	return m, nil
}

// EncodeMetadata serializes a PostMetadata for storage.
func EncodeMetadata(m PostMetadata) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("store: encoding post metadata: %w", err)
	}
	return string(b), nil
}
