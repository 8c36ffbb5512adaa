package ssb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/plurcast/plurcast/pkg/platform"
)

func TestPostSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/publish" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(publishResponse{Key: "%abc123.sha256"})
	}))
	defer srv.Close()

	a := New(Config{GatewayURL: srv.URL})
	key, err := a.Post(context.Background(), platform.Credential{}, "hello ssb", nil)
	if err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	if key != "%abc123.sha256" {
		t.Fatalf("Post() key = %q, want %%abc123.sha256", key)
	}
}

func TestPostGatewayUnreachable(t *testing.T) {
	a := New(Config{GatewayURL: "http://127.0.0.1:1"})
	_, err := a.Post(context.Background(), platform.Credential{}, "hello", nil)
	class, ok := platform.ClassOf(err)
	if !ok || class != platform.ClassNetwork {
		t.Fatalf("class = %v, ok = %v, want network", class, ok)
	}
}

func TestIsConfigured(t *testing.T) {
	if (New(Config{})).IsConfigured() {
		t.Fatal("expected unconfigured adapter without a gateway url")
	}
	if !(New(Config{GatewayURL: "http://localhost:8080"})).IsConfigured() {
		t.Fatal("expected configured adapter with a gateway url")
	}
}
