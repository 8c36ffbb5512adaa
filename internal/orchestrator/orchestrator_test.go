package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plurcast/plurcast/internal/account"
	"github.com/plurcast/plurcast/internal/credential"
	"github.com/plurcast/plurcast/internal/ratelimit"
	"github.com/plurcast/plurcast/internal/store"
	"github.com/plurcast/plurcast/pkg/platform"
)

// fakeAdapter is a scripted platform.Adapter for exercising the
// Orchestrator's fan-out and retry logic without any real network calls.
type fakeAdapter struct {
	name         string
	credType     string
	configured   bool
	validateErr  error
	authErr      error
	failAttempts int32 // number of leading calls to Post that fail
	alwaysFail   bool  // every call fails, regardless of failAttempts
	failClass    platform.ErrorClass
	calls        int32
	postedID     string
}

func (f *fakeAdapter) Name() string             { return f.name }
func (f *fakeAdapter) CredentialType() string    { return f.credType }
func (f *fakeAdapter) CharacterLimit() *int      { return nil }
func (f *fakeAdapter) IsConfigured() bool        { return f.configured }
func (f *fakeAdapter) Validate(string) error     { return f.validateErr }
func (f *fakeAdapter) Authenticate(context.Context, platform.Credential) error {
	return f.authErr
}

func (f *fakeAdapter) Post(_ context.Context, _ platform.Credential, _ string, _ platform.Hints) (string, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.alwaysFail || n <= f.failAttempts {
		class := f.failClass
		if class == "" {
			class = platform.ClassNetwork
		}
		return "", &platform.Error{Class: class, Message: "fake failure"}
	}
	id := f.postedID
	if id == "" {
		id = "fake-id"
	}
	return id, nil
}

func newFakeFactory(a *fakeAdapter) platform.Factory {
	return func() platform.Adapter { return a }
}

// testDeps bundles everything Orchestrator needs, built against a
// throwaway SQLite file per test.
type testDeps struct {
	o        *Orchestrator
	st       *store.Store
	creds    *credential.Store
	accounts *account.Registry
	regs     *platform.Registry
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "plurcast.db"))
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	creds, err := credential.NewInMemoryForTest()
	if err != nil {
		t.Fatalf("credential.NewInMemoryForTest() error: %v", err)
	}
	accounts := account.New(st, creds)
	regs := platform.NewRegistry()
	rl := ratelimit.New(st, time.Hour)

	o := New(st, accounts, creds, regs, rl, discardLogger(),
		WithIDGenerator(func() string { return "post-1" }),
		WithBackoff(func(int) time.Duration { return 0 }),
	)
	return &testDeps{o: o, st: st, creds: creds, accounts: accounts, regs: regs}
}

// registerPlatform wires up a fully usable fake adapter under name with a
// "default" account holding a credential.
func (d *testDeps) registerPlatform(t *testing.T, a *fakeAdapter) {
	t.Helper()
	d.regs.Register(a.name, newFakeFactory(a))
	ctx := context.Background()
	if err := d.accounts.Register(ctx, a.name, "default", 1); err != nil {
		t.Fatalf("registering account: %v", err)
	}
	key := credential.Key{Platform: a.name, Account: "default", CredentialType: a.credType}
	if err := d.creds.StoreValue(ctx, key, "secret", false); err != nil {
		t.Fatalf("storing credential: %v", err)
	}
}

func TestPostDraftPersistsWithoutDispatch(t *testing.T) {
	d := newTestDeps(t)
	a := &fakeAdapter{name: "nostr", credType: "private_key", configured: true}
	d.registerPlatform(t, a)

	resp, err := d.o.Post(context.Background(), Request{
		Content:   "hello world",
		Platforms: []string{"nostr"},
		Draft:     true,
	})
	if err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	if resp.PerPlatform != nil {
		t.Fatalf("draft response carries per-platform results: %+v", resp.PerPlatform)
	}

	post, err := d.st.GetPost(context.Background(), resp.PostID)
	if err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}
	if post.Status != string(store.StatusDraft) {
		t.Fatalf("status = %q, want draft", post.Status)
	}
	if atomic.LoadInt32(&a.calls) != 0 {
		t.Fatalf("draft must never dispatch, got %d Post() calls", a.calls)
	}
}

func TestPostScheduledAndDraftAreMutuallyExclusive(t *testing.T) {
	d := newTestDeps(t)
	future := time.Now().Add(time.Hour)
	_, err := d.o.Post(context.Background(), Request{
		Content:     "hello",
		Platforms:   []string{"nostr"},
		Draft:       true,
		ScheduledAt: &future,
	})
	if err == nil {
		t.Fatal("expected error for draft+scheduled_at")
	}
}

func TestPostScheduledInPastRejected(t *testing.T) {
	d := newTestDeps(t)
	past := time.Now().Add(-time.Hour)
	_, err := d.o.Post(context.Background(), Request{
		Content:     "hello",
		Platforms:   []string{"nostr"},
		ScheduledAt: &past,
	})
	if err == nil {
		t.Fatal("expected error for scheduled_at in the past")
	}
}

func TestPostScheduledPersistsAsScheduled(t *testing.T) {
	d := newTestDeps(t)
	future := time.Now().Add(time.Hour)
	resp, err := d.o.Post(context.Background(), Request{
		Content:     "hello",
		Platforms:   []string{"nostr"},
		ScheduledAt: &future,
	})
	if err != nil {
		t.Fatalf("Post() error: %v", err)
	}

	post, err := d.st.GetPost(context.Background(), resp.PostID)
	if err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}
	if post.Status != string(store.StatusScheduled) {
		t.Fatalf("status = %q, want scheduled", post.Status)
	}
}

func TestPostImmediateMultiPlatformSuccess(t *testing.T) {
	d := newTestDeps(t)
	nostr := &fakeAdapter{name: "nostr", credType: "private_key", configured: true}
	mastodon := &fakeAdapter{name: "mastodon", credType: "access_token", configured: true}
	d.registerPlatform(t, nostr)
	d.registerPlatform(t, mastodon)

	resp, err := d.o.Post(context.Background(), Request{
		Content:   "hello world",
		Platforms: []string{"nostr", "mastodon"},
	})
	if err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	if len(resp.PerPlatform) != 2 {
		t.Fatalf("PerPlatform = %d entries, want 2", len(resp.PerPlatform))
	}
	for _, r := range resp.PerPlatform {
		if !r.Success {
			t.Errorf("platform %s: expected success, got error %s/%s", r.Platform, r.ErrorClass, r.ErrorMessage)
		}
	}

	post, err := d.st.GetPost(context.Background(), resp.PostID)
	if err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}
	if post.Status != string(store.StatusPosted) {
		t.Fatalf("status = %q, want posted", post.Status)
	}

	attempts, err := d.st.ListAttemptsForPost(context.Background(), resp.PostID)
	if err != nil {
		t.Fatalf("ListAttemptsForPost() error: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(attempts))
	}
}

func TestPostPartialFailureYieldsPostedStatus(t *testing.T) {
	d := newTestDeps(t)
	good := &fakeAdapter{name: "nostr", credType: "private_key", configured: true}
	bad := &fakeAdapter{
		name: "mastodon", credType: "access_token", configured: true,
		failAttempts: MaxAttempts, failClass: platform.ClassValidation,
	}
	d.registerPlatform(t, good)
	d.registerPlatform(t, bad)

	resp, err := d.o.Post(context.Background(), Request{
		Content:   "hello world",
		Platforms: []string{"nostr", "mastodon"},
	})
	if err != nil {
		t.Fatalf("Post() error: %v", err)
	}

	var sawSuccess, sawFailure bool
	for _, r := range resp.PerPlatform {
		if r.Platform == "nostr" && r.Success {
			sawSuccess = true
		}
		if r.Platform == "mastodon" && !r.Success {
			sawFailure = true
		}
	}
	if !sawSuccess || !sawFailure {
		t.Fatalf("expected one success and one failure, got %+v", resp.PerPlatform)
	}
	// A non-transient error class must not be retried.
	if atomic.LoadInt32(&bad.calls) != 1 {
		t.Fatalf("non-transient failure called Post() %d times, want 1", bad.calls)
	}

	post, err := d.st.GetPost(context.Background(), resp.PostID)
	if err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}
	if post.Status != string(store.StatusPosted) {
		t.Fatalf("status = %q, want posted (any success counts)", post.Status)
	}
}

func TestPostAllPlatformsNetworkFailureRetriesAndFails(t *testing.T) {
	d := newTestDeps(t)
	a := &fakeAdapter{
		name: "nostr", credType: "private_key", configured: true,
		failAttempts: MaxAttempts, failClass: platform.ClassNetwork,
	}
	d.registerPlatform(t, a)

	resp, err := d.o.Post(context.Background(), Request{
		Content:   "hello world",
		Platforms: []string{"nostr"},
	})
	if err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	if atomic.LoadInt32(&a.calls) != MaxAttempts {
		t.Fatalf("transient failure called Post() %d times, want %d", a.calls, MaxAttempts)
	}
	if len(resp.PerPlatform) != 1 || resp.PerPlatform[0].Success {
		t.Fatalf("expected single failed result, got %+v", resp.PerPlatform)
	}

	post, err := d.st.GetPost(context.Background(), resp.PostID)
	if err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}
	if post.Status != string(store.StatusFailed) {
		t.Fatalf("status = %q, want failed", post.Status)
	}
}

func TestPostPrevalidationFailureExcludesPlatformFromFanOut(t *testing.T) {
	d := newTestDeps(t)
	a := &fakeAdapter{name: "nostr", credType: "private_key", configured: false}
	d.regs.Register(a.name, newFakeFactory(a))

	resp, err := d.o.Post(context.Background(), Request{
		Content:   "hello world",
		Platforms: []string{"nostr"},
	})
	if err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	if len(resp.PerPlatform) != 1 {
		t.Fatalf("PerPlatform = %d entries, want 1", len(resp.PerPlatform))
	}
	if resp.PerPlatform[0].Success {
		t.Fatal("unconfigured platform must not succeed")
	}
	if atomic.LoadInt32(&a.calls) != 0 {
		t.Fatalf("unconfigured platform must never be dispatched, got %d calls", a.calls)
	}
}

func TestPostRejectsEmptyContent(t *testing.T) {
	d := newTestDeps(t)
	_, err := d.o.Post(context.Background(), Request{Content: "   ", Platforms: []string{"nostr"}})
	if err == nil {
		t.Fatal("expected ErrInvalidInput for blank content")
	}
}

func TestPostRejectsOversizedContent(t *testing.T) {
	d := newTestDeps(t)
	huge := make([]byte, MaxContentBytes+1)
	for i := range huge {
		huge[i] = 'a'
	}
	_, err := d.o.Post(context.Background(), Request{Content: string(huge), Platforms: []string{"nostr"}})
	if err == nil {
		t.Fatal("expected ErrInvalidInput for oversized content")
	}
}

func TestRetryIncrementsRetryCountOnContinuedFailure(t *testing.T) {
	d := newTestDeps(t)
	a := &fakeAdapter{
		name: "nostr", credType: "private_key", configured: true,
		alwaysFail: true, failClass: platform.ClassNetwork,
	}
	d.registerPlatform(t, a)

	resp, err := d.o.Post(context.Background(), Request{Content: "hello", Platforms: []string{"nostr"}})
	if err != nil {
		t.Fatalf("Post() error: %v", err)
	}

	post, err := d.st.GetPost(context.Background(), resp.PostID)
	if err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}
	meta, err := store.DecodeMetadata(post.Metadata)
	if err != nil {
		t.Fatalf("DecodeMetadata() error: %v", err)
	}
	if meta.RetryCount != 0 {
		t.Fatalf("RetryCount = %d before any Retry() call, want 0", meta.RetryCount)
	}

	// The adapter keeps failing forever (alwaysFail), so a Retry() call
	// should bump RetryCount and leave status failed.
	retryResp, err := d.o.Retry(context.Background(), *post, []string{"nostr"})
	if err != nil {
		t.Fatalf("Retry() error: %v", err)
	}
	if retryResp.PerPlatform[0].Success {
		t.Fatal("expected retry to fail again")
	}

	post2, err := d.st.GetPost(context.Background(), resp.PostID)
	if err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}
	meta2, err := store.DecodeMetadata(post2.Metadata)
	if err != nil {
		t.Fatalf("DecodeMetadata() error: %v", err)
	}
	if meta2.RetryCount != 1 {
		t.Fatalf("RetryCount = %d after one failed Retry(), want 1", meta2.RetryCount)
	}
	if meta2.LastRetryAt == nil {
		t.Fatal("LastRetryAt not set after Retry()")
	}
	if post2.Status != string(store.StatusFailed) {
		t.Fatalf("status = %q, want failed", post2.Status)
	}
}

func TestRetrySuccessDoesNotIncrementRetryCount(t *testing.T) {
	d := newTestDeps(t)
	// failAttempts caps the leading failing calls at exactly the initial
	// Post() dispatch's 3 attempts; the next call (Retry()'s) succeeds,
	// mimicking a transient outage clearing before the retry runs.
	a := &fakeAdapter{name: "nostr", credType: "private_key", configured: true, failAttempts: MaxAttempts, failClass: platform.ClassNetwork}
	d.registerPlatform(t, a)

	resp, err := d.o.Post(context.Background(), Request{Content: "hello", Platforms: []string{"nostr"}})
	if err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	post, err := d.st.GetPost(context.Background(), resp.PostID)
	if err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}

	retryResp, err := d.o.Retry(context.Background(), *post, []string{"nostr"})
	if err != nil {
		t.Fatalf("Retry() error: %v", err)
	}
	if !retryResp.PerPlatform[0].Success {
		t.Fatalf("expected retry to succeed once outage clears, got %+v", retryResp.PerPlatform[0])
	}

	post2, err := d.st.GetPost(context.Background(), resp.PostID)
	if err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}
	meta2, err := store.DecodeMetadata(post2.Metadata)
	if err != nil {
		t.Fatalf("DecodeMetadata() error: %v", err)
	}
	if meta2.RetryCount != 0 {
		t.Fatalf("RetryCount = %d after a successful Retry(), want unchanged at 0", meta2.RetryCount)
	}
	if post2.Status != string(store.StatusPosted) {
		t.Fatalf("status = %q, want posted", post2.Status)
	}
}

// discardLogger returns a *slog.Logger that writes nowhere, for tests
// that don't assert on log output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
