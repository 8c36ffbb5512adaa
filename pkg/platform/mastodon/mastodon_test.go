package mastodon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/plurcast/plurcast/pkg/platform"
)

func TestPostSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/statuses" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Fatalf("Authorization = %q, want Bearer test-token", got)
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(statusResponse{ID: "12345"})
	}))
	defer srv.Close()

	a := New(Config{InstanceURL: srv.URL})
	id, err := a.Post(context.Background(), platform.Credential{Value: "test-token"}, "hello", nil)
	if err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	if id != "12345" {
		t.Fatalf("Post() id = %q, want 12345", id)
	}
}

func TestPostMapsStatusCodesToErrorClasses(t *testing.T) {
	cases := []struct {
		status int
		class  platform.ErrorClass
	}{
		{http.StatusUnauthorized, platform.ClassAuthentication},
		{http.StatusUnprocessableEntity, platform.ClassValidation},
		{http.StatusTooManyRequests, platform.ClassRateLimit},
		{http.StatusInternalServerError, platform.ClassNetwork},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		a := New(Config{InstanceURL: srv.URL})
		_, err := a.Post(context.Background(), platform.Credential{Value: "tok"}, "hello", nil)
		class, ok := platform.ClassOf(err)
		if !ok {
			t.Fatalf("status %d: expected a platform.Error, got %v", tc.status, err)
		}
		if class != tc.class {
			t.Fatalf("status %d: class = %q, want %q", tc.status, class, tc.class)
		}
		srv.Close()
	}
}

func TestValidateRejectsOverLimit(t *testing.T) {
	a := New(Config{InstanceURL: "https://example.social", CharacterLimit: 10})
	if err := a.Validate(strings.Repeat("a", 11)); err == nil {
		t.Fatal("expected validation error for over-limit content")
	}
	if err := a.Validate(strings.Repeat("a", 10)); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}
