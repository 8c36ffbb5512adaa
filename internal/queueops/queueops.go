// Package queueops implements Queue Operations: idempotent list/cancel/
// reschedule/promote/stats commands over the Post table, independent of
// the Posting Orchestrator (spec §4.9).
package queueops

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/plurcast/plurcast/internal/store"
	"github.com/plurcast/plurcast/pkg/schedule"
)

// CancelResult mirrors spec §4.9's three-way cancel outcome.
type CancelResult string

const (
	CancelOK             CancelResult = "ok"
	CancelNotFound       CancelResult = "not_found"
	CancelNotCancellable CancelResult = "not_cancellable"
)

// Ops wraps the durable store to expose Queue Operations.
type Ops struct {
	store *store.Store
	now   func() time.Time
	rng   *rand.Rand
}

func New(s *store.Store) *Ops {
	return &Ops{store: s, now: time.Now, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// List returns posts matching the optional status/platform filters,
// ordered per spec §4.9 (scheduled_at ascending for scheduled, created_at
// descending otherwise).
func (o *Ops) List(ctx context.Context, statusFilter, platformFilter string) ([]store.Post, error) {
	return o.store.ListPosts(ctx, statusFilter, platformFilter)
}

// Cancel deletes a post iff it is in {scheduled, draft, failed}.
func (o *Ops) Cancel(ctx context.Context, postID string) (CancelResult, error) {
	post, err := o.store.GetPost(ctx, postID)
	if err != nil {
		return "", fmt.Errorf("queueops: getting post %s: %w", postID, err)
	}
	if post == nil {
		return CancelNotFound, nil
	}
	deleted, err := o.store.DeletePost(ctx, postID)
	if err != nil {
		return "", fmt.Errorf("queueops: cancelling post %s: %w", postID, err)
	}
	if !deleted {
		return CancelNotCancellable, nil
	}
	return CancelOK, nil
}

// Reschedule re-parses expr relative to now (duration/keyword/random or
// the relative +1h/-30m grammar when the post already has a
// scheduled_at) and updates scheduled_at in place. Rejects posts not
// currently in status=scheduled.
func (o *Ops) Reschedule(ctx context.Context, postID, expr string) (time.Time, error) {
	post, err := o.store.GetPost(ctx, postID)
	if err != nil {
		return time.Time{}, fmt.Errorf("queueops: getting post %s: %w", postID, err)
	}
	if post == nil {
		return time.Time{}, fmt.Errorf("queueops: post %s not found", postID)
	}
	if post.Status != string(store.StatusScheduled) {
		return time.Time{}, fmt.Errorf("queueops: post %s is not scheduled (status=%s)", postID, post.Status)
	}

	now := o.now()
	var target time.Time
	if schedule.IsRelative(expr) {
		if post.ScheduledAt == nil {
			return time.Time{}, fmt.Errorf("queueops: post %s has no current schedule to adjust", postID)
		}
		current := time.Unix(*post.ScheduledAt, 0)
		target, err = schedule.ParseRelative(expr, current, now)
	} else {
		target, err = schedule.Parse(expr, now, nil, o.rng)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("queueops: parsing schedule expression: %w", err)
	}

	ok, err := o.store.UpdatePostSchedule(ctx, postID, target.Unix())
	if err != nil {
		return time.Time{}, fmt.Errorf("queueops: rescheduling post %s: %w", postID, err)
	}
	if !ok {
		return time.Time{}, fmt.Errorf("queueops: post %s is no longer scheduled", postID)
	}
	return target, nil
}

// Promote ("now") sets a post's scheduled_at to now and its status to
// scheduled, iff the post is currently scheduled or failed, so the
// Dispatcher's next poll dispatches it immediately (spec §4.9).
func (o *Ops) Promote(ctx context.Context, postID string) (bool, error) {
	return o.store.PromotePost(ctx, postID, o.now().Unix())
}

// Stats is the aggregate view returned by stats(): per-platform counts,
// time-bucketed scheduled counts, and the next few upcoming posts.
type Stats struct {
	ByPlatform  map[string]int
	ByStatus    map[string]int
	NextHour    int
	Today       int
	ThisWeek    int
	Later       int
	NextUpcoming []store.Post
}

// Stats aggregates by platform, by time bucket (next hour / today / this
// week / later), plus the next five upcoming posts (spec §4.9).
func (o *Ops) Stats(ctx context.Context) (*Stats, error) {
	all, err := o.store.ListPosts(ctx, "", "")
	if err != nil {
		return nil, fmt.Errorf("queueops: listing posts for stats: %w", err)
	}

	now := o.now()
	endOfHour := now.Add(time.Hour)
	endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())
	endOfWeek := endOfDay.AddDate(0, 0, 7-int(now.Weekday()))

	s := &Stats{ByPlatform: map[string]int{}, ByStatus: map[string]int{}}

	for _, p := range all {
		s.ByStatus[p.Status]++
		meta, err := store.DecodeMetadata(p.Metadata)
		if err == nil {
			for _, plat := range meta.Platforms {
				s.ByPlatform[plat]++
			}
		}
		if p.Status == string(store.StatusScheduled) && p.ScheduledAt != nil {
			at := time.Unix(*p.ScheduledAt, 0)
			switch {
			case at.Before(endOfHour):
				s.NextHour++
			case at.Before(endOfDay):
				s.Today++
			case at.Before(endOfWeek):
				s.ThisWeek++
			default:
				s.Later++
			}
		}
	}

	// Queried separately (rather than filtered out of `all`) because only
	// the scheduled-status listing is ordered scheduled_at ascending.
	scheduled, err := o.store.ListPosts(ctx, string(store.StatusScheduled), "")
	if err != nil {
		return nil, fmt.Errorf("queueops: listing scheduled posts for stats: %w", err)
	}
	if len(scheduled) > 5 {
		scheduled = scheduled[:5]
	}
	s.NextUpcoming = scheduled

	return s, nil
}
