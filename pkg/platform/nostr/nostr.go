// Package nostr implements a platform.Adapter that publishes kind-1 text
// notes to one or more Nostr relays over their websocket protocol.
package nostr

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/gorilla/websocket"

	"github.com/plurcast/plurcast/pkg/platform"
)

const kindTextNote = 1

// PowHint is the Hints key for the desired proof-of-work difficulty
// (leading zero bits of the event ID), per NIP-13.
const PowHint = "nostr_pow"

// Config is the static, file-backed configuration for the adapter
// (relay URLs and PoW worker-pool size). It is resolved once at process
// startup from the `[nostr]` config section.
type Config struct {
	RelayURLs  []string
	PowWorkers int
	DialTimeout time.Duration
}

// Adapter publishes events to Config.RelayURLs. A fresh instance is
// constructed per Orchestrator invocation.
type Adapter struct {
	cfg Config
}

func New(cfg Config) *Adapter {
	if cfg.PowWorkers <= 0 {
		cfg.PowWorkers = 4
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Adapter{cfg: cfg}
}

func NewFactory(cfg Config) platform.Factory {
	return func() platform.Adapter { return New(cfg) }
}

func (a *Adapter) Name() string { return "nostr" }

func (a *Adapter) CredentialType() string { return "private_key" }

// CharacterLimit is nil: Nostr text notes have no protocol-level cap.
func (a *Adapter) CharacterLimit() *int { return nil }

func (a *Adapter) IsConfigured() bool { return len(a.cfg.RelayURLs) > 0 }

func (a *Adapter) Validate(content string) error {
	if content == "" {
		return platform.ErrValidation("content must not be empty", nil)
	}
	return nil
}

// Authenticate derives the public key from the credential and confirms
// it parses as a valid secp256k1 private key; Nostr relays don't perform
// a separate login handshake, so there is nothing further to verify.
func (a *Adapter) Authenticate(_ context.Context, cred platform.Credential) error {
	_, err := privKeyFromHex(cred.Value)
	if err != nil {
		return platform.ErrAuthentication("invalid nostr private key", err)
	}
	return nil
}

func (a *Adapter) Post(ctx context.Context, cred platform.Credential, content string, hints platform.Hints) (string, error) {
	if !a.IsConfigured() {
		return "", platform.ErrPosting("no relay URLs configured", nil)
	}

	priv, err := privKeyFromHex(cred.Value)
	if err != nil {
		return "", platform.ErrAuthentication("invalid nostr private key", err)
	}

	pubkeyHex := hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))
	createdAt := time.Now().Unix()

	var ev event
	pow, hasPow := hints.Int(PowHint)
	if hasPow && pow > 0 {
		ev, err = mineEvent(ctx, pubkeyHex, createdAt, content, pow, a.cfg.PowWorkers)
		if err != nil {
			return "", platform.ErrPosting("proof-of-work mining failed", err)
		}
	} else {
		ev = newEvent(pubkeyHex, createdAt, content, nil)
	}

	id, err := ev.computeID()
	if err != nil {
		return "", platform.ErrPosting("computing event id", err)
	}
	ev.ID = id

	sig, err := schnorr.Sign(priv, mustHexDecode(id))
	if err != nil {
		return "", platform.ErrPosting("signing event", err)
	}
	ev.Sig = hex.EncodeToString(sig.Serialize())

	if err := a.publish(ctx, ev); err != nil {
		return "", err
	}
	return ev.ID, nil
}

// publish sends the event to every configured relay, succeeding if at
// least one relay accepts it (OK message with true).
func (a *Adapter) publish(ctx context.Context, ev event) error {
	msg, err := json.Marshal([]any{"EVENT", ev})
	if err != nil {
		return platform.ErrPosting("marshaling event", err)
	}

	var lastErr error
	accepted := false
	for _, relayURL := range a.cfg.RelayURLs {
		if err := a.publishOne(ctx, relayURL, msg); err != nil {
			lastErr = err
			continue
		}
		accepted = true
	}
	if accepted {
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no relays configured")
	}
	return lastErr
}

func (a *Adapter) publishOne(ctx context.Context, relayURL string, msg []byte) error {
	dialer := websocket.Dialer{HandshakeTimeout: a.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		return platform.ErrNetwork(fmt.Sprintf("dialing relay %s", relayURL), err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return platform.ErrNetwork(fmt.Sprintf("writing to relay %s", relayURL), err)
	}

	_, reply, err := conn.ReadMessage()
	if err != nil {
		return platform.ErrNetwork(fmt.Sprintf("reading reply from relay %s", relayURL), err)
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(reply, &frame); err != nil || len(frame) < 3 {
		return platform.ErrNetwork(fmt.Sprintf("malformed reply from relay %s", relayURL), nil)
	}
	var accepted bool
	if err := json.Unmarshal(frame[2], &accepted); err != nil {
		return platform.ErrPosting(fmt.Sprintf("relay %s did not accept event", relayURL), nil)
	}
	if !accepted {
		return platform.ErrPosting(fmt.Sprintf("relay %s rejected event", relayURL), nil)
	}
	return nil
}

func privKeyFromHex(s string) (*btcec.PrivateKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding private key hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, nil
}

func mustHexDecode(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err) // id is always our own computeID output
	}
	return b
}
