// Package mastodon implements a platform.Adapter posting statuses to a
// Mastodon (or compatible ActivityPub server) instance's REST API.
package mastodon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/oauth2"

	"github.com/plurcast/plurcast/pkg/platform"
)

// defaultCharacterLimit matches vanilla Mastodon's default; real
// instances can raise it, hence Config.CharacterLimit overrides it.
const defaultCharacterLimit = 500

// Config is the static per-instance configuration, resolved from the
// `[mastodon]` config section.
type Config struct {
	InstanceURL    string
	CharacterLimit int
	HTTPTimeout    time.Duration
}

type Adapter struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Adapter {
	if cfg.CharacterLimit <= 0 {
		cfg.CharacterLimit = defaultCharacterLimit
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: cfg.HTTPTimeout}}
}

func NewFactory(cfg Config) platform.Factory {
	return func() platform.Adapter { return New(cfg) }
}

func (a *Adapter) Name() string { return "mastodon" }

func (a *Adapter) CredentialType() string { return "access_token" }

func (a *Adapter) CharacterLimit() *int {
	limit := a.cfg.CharacterLimit
	return &limit
}

func (a *Adapter) IsConfigured() bool {
	if a.cfg.InstanceURL == "" {
		return false
	}
	_, err := url.Parse(a.cfg.InstanceURL)
	return err == nil
}

func (a *Adapter) Validate(content string) error {
	if content == "" {
		return platform.ErrValidation("content must not be empty", nil)
	}
	if n := utf8.RuneCountInString(content); n > a.cfg.CharacterLimit {
		return platform.ErrValidation(fmt.Sprintf("content is %d characters, limit is %d", n, a.cfg.CharacterLimit), nil)
	}
	return nil
}

// Authenticate verifies the bearer token by calling the
// `/api/v1/accounts/verify_credentials` endpoint.
func (a *Adapter) Authenticate(ctx context.Context, cred platform.Credential) error {
	req, err := a.newRequest(ctx, cred, http.MethodGet, "/api/v1/accounts/verify_credentials", nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return platform.ErrNetwork("verifying mastodon credentials", err)
	}
	defer resp.Body.Close()
	return classifyStatus(resp.StatusCode)
}

type statusRequest struct {
	Status string `json:"status"`
}

type statusResponse struct {
	ID string `json:"id"`
}

func (a *Adapter) Post(ctx context.Context, cred platform.Credential, content string, _ platform.Hints) (string, error) {
	if !a.IsConfigured() {
		return "", platform.ErrPosting("no instance URL configured", nil)
	}

	body, err := json.Marshal(statusRequest{Status: content})
	if err != nil {
		return "", platform.ErrPosting("marshaling status", err)
	}

	req, err := a.newRequest(ctx, cred, http.MethodPost, "/api/v1/statuses", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", platform.ErrNetwork("posting status", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return "", err
	}

	var decoded statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", platform.ErrPosting("decoding status response", err)
	}
	return decoded.ID, nil
}

func (a *Adapter) newRequest(ctx context.Context, cred platform.Credential, method, path string, body *bytes.Reader) (*http.Request, error) {
	target := strings.TrimRight(a.cfg.InstanceURL, "/") + path
	var reader *bytes.Reader
	if body != nil {
		reader = body
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, platform.ErrPosting("building request", err)
	}

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.Value, TokenType: "Bearer"})
	token, err := tokenSource.Token()
	if err != nil {
		return nil, platform.ErrAuthentication("resolving access token", err)
	}
	token.SetAuthHeader(req)
	return req, nil
}

// classifyStatus maps an HTTP response status to spec §4.4's taxonomy
// (401 -> authentication, 422 -> validation, 429 -> rate_limit, 5xx ->
// network).
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return platform.ErrAuthentication(fmt.Sprintf("mastodon returned %d", status), nil)
	case status == http.StatusUnprocessableEntity:
		return platform.ErrValidation(fmt.Sprintf("mastodon returned %d", status), nil)
	case status == http.StatusTooManyRequests:
		return platform.ErrRateLimit(fmt.Sprintf("mastodon returned %d", status), nil)
	case status >= 500:
		return platform.ErrNetwork(fmt.Sprintf("mastodon returned %d", status), nil)
	default:
		return platform.ErrPosting(fmt.Sprintf("mastodon returned unexpected status %d", status), nil)
	}
}
