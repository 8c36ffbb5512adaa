package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plurcast.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := Post{ID: "post-1", Content: "hello", CreatedAt: 1000, Status: string(StatusPending)}
	if err := s.InsertPost(ctx, p); err != nil {
		t.Fatalf("InsertPost() error: %v", err)
	}

	got, err := s.GetPost(ctx, "post-1")
	if err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}
	if got == nil || got.Content != "hello" {
		t.Fatalf("GetPost() = %+v, want content hello", got)
	}

	if err := s.UpdatePostStatus(ctx, s.DB, "post-1", StatusPosted, nil); err != nil {
		t.Fatalf("UpdatePostStatus() error: %v", err)
	}
	got, _ = s.GetPost(ctx, "post-1")
	if got.Status != string(StatusPosted) {
		t.Fatalf("status = %q, want posted", got.Status)
	}
}

func TestDeletePostOnlyWhenCancellable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	posted := Post{ID: "posted-1", Content: "x", CreatedAt: 1, Status: string(StatusPosted)}
	scheduled := Post{ID: "sched-1", Content: "x", CreatedAt: 1, Status: string(StatusScheduled)}
	if err := s.InsertPost(ctx, posted); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertPost(ctx, scheduled); err != nil {
		t.Fatal(err)
	}

	ok, err := s.DeletePost(ctx, "posted-1")
	if err != nil {
		t.Fatalf("DeletePost() error: %v", err)
	}
	if ok {
		t.Error("expected posted post to be non-cancellable")
	}

	ok, err = s.DeletePost(ctx, "sched-1")
	if err != nil {
		t.Fatalf("DeletePost() error: %v", err)
	}
	if !ok {
		t.Error("expected scheduled post to be cancellable")
	}
}

func TestAttemptsAppendAcrossRetries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := Post{ID: "post-2", Content: "x", CreatedAt: 1, Status: string(StatusPending)}
	if err := s.InsertPost(ctx, p); err != nil {
		t.Fatal(err)
	}

	// A single Orchestrator run records at most one attempt per
	// (post, platform, account); a later retry run appends another.
	first := PostAttempt{PostID: "post-2", Platform: "nostr", AccountName: "default", Success: false}
	if err := InsertAttempt(ctx, s.DB, first); err != nil {
		t.Fatalf("InsertAttempt() error: %v", err)
	}
	second := PostAttempt{PostID: "post-2", Platform: "nostr", AccountName: "default", Success: true}
	if err := InsertAttempt(ctx, s.DB, second); err != nil {
		t.Fatalf("InsertAttempt() error: %v", err)
	}

	attempts, err := s.ListAttemptsForPost(ctx, "post-2")
	if err != nil {
		t.Fatalf("ListAttemptsForPost() error: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("len(attempts) = %d, want 2", len(attempts))
	}
	if attempts[0].Success || !attempts[1].Success {
		t.Fatalf("attempts not in insertion order: %+v", attempts)
	}
}

func TestAccountRegistryActiveExclusivity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RegisterAccount(ctx, "nostr", "default", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterAccount(ctx, "nostr", "work", 1); err != nil {
		t.Fatal(err)
	}

	if err := s.UseAccount(ctx, "nostr", "default"); err != nil {
		t.Fatalf("UseAccount() error: %v", err)
	}
	if err := s.UseAccount(ctx, "nostr", "work"); err != nil {
		t.Fatalf("UseAccount() error: %v", err)
	}

	active, err := s.ActiveAccount(ctx, "nostr")
	if err != nil {
		t.Fatalf("ActiveAccount() error: %v", err)
	}
	if active != "work" {
		t.Fatalf("active account = %q, want work", active)
	}
}

func TestDueScheduledPosts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	due := int64(1000)
	notDue := int64(5000)
	p1 := Post{ID: "s1", Content: "a", CreatedAt: 1, ScheduledAt: &due, Status: string(StatusScheduled)}
	p2 := Post{ID: "s2", Content: "b", CreatedAt: 1, ScheduledAt: &notDue, Status: string(StatusScheduled)}
	if err := s.InsertPost(ctx, p1); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertPost(ctx, p2); err != nil {
		t.Fatal(err)
	}

	due_, err := s.DueScheduledPosts(ctx, 2000)
	if err != nil {
		t.Fatalf("DueScheduledPosts() error: %v", err)
	}
	if len(due_) != 1 || due_[0].ID != "s1" {
		t.Fatalf("DueScheduledPosts() = %+v, want only s1", due_)
	}
}
