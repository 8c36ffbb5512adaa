// Package ssb implements a platform.Adapter that posts through a local
// go-ssb HTTP/muxrpc gateway, rather than speaking the box-stream wire
// protocol directly.
package ssb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/plurcast/plurcast/pkg/platform"
)

// Config is the static gateway configuration, resolved from the `[ssb]`
// config section.
type Config struct {
	GatewayURL  string
	HTTPTimeout time.Duration
}

type Adapter struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Adapter {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: cfg.HTTPTimeout}}
}

func NewFactory(cfg Config) platform.Factory {
	return func() platform.Adapter { return New(cfg) }
}

func (a *Adapter) Name() string { return "ssb" }

// CredentialType is "identity", though the gateway holds the actual SSB
// keypair; Plurcast stores only a reachability marker for it.
func (a *Adapter) CredentialType() string { return "identity" }

// CharacterLimit is nil: SSB posts are a free-form JSON content object
// with no hard length cap.
func (a *Adapter) CharacterLimit() *int { return nil }

func (a *Adapter) IsConfigured() bool { return a.cfg.GatewayURL != "" }

func (a *Adapter) Validate(content string) error {
	if content == "" {
		return platform.ErrValidation("content must not be empty", nil)
	}
	return nil
}

// Authenticate pings the gateway's health endpoint; the gateway itself
// holds the SSB keypair, so there's no bearer credential to validate
// beyond confirming the gateway is reachable and reports it has one
// unlocked.
func (a *Adapter) Authenticate(ctx context.Context, _ platform.Credential) error {
	target := strings.TrimRight(a.cfg.GatewayURL, "/") + "/whoami"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return platform.ErrPosting("building request", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return platform.ErrNetwork("reaching ssb gateway", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return platform.ErrNetwork(fmt.Sprintf("ssb gateway returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return platform.ErrAuthentication("ssb gateway has no unlocked identity", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return platform.ErrPosting(fmt.Sprintf("ssb gateway returned %d", resp.StatusCode), nil)
	}
	return nil
}

type publishRequest struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type publishResponse struct {
	Key string `json:"key"`
}

func (a *Adapter) Post(ctx context.Context, _ platform.Credential, content string, _ platform.Hints) (string, error) {
	if !a.IsConfigured() {
		return "", platform.ErrPosting("no gateway url configured", nil)
	}

	body, err := json.Marshal(publishRequest{Type: "post", Text: content})
	if err != nil {
		return "", platform.ErrPosting("marshaling publish request", err)
	}

	target := strings.TrimRight(a.cfg.GatewayURL, "/") + "/publish"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return "", platform.ErrPosting("building request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", platform.ErrNetwork("reaching ssb gateway", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return "", platform.ErrNetwork(fmt.Sprintf("ssb gateway returned %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusUnauthorized:
		return "", platform.ErrAuthentication("ssb gateway has no unlocked identity", nil)
	case resp.StatusCode != http.StatusOK:
		return "", platform.ErrPosting(fmt.Sprintf("ssb gateway returned %d", resp.StatusCode), nil)
	}

	var decoded publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", platform.ErrPosting("decoding publish response", err)
	}
	return decoded.Key, nil
}
