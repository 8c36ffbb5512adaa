package credential

import (
	"context"
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

// keyringBackend stores each credential as one OS keyring entry, keyed by
// the flattened service string and the credential type as the "user" field
// (spec §4.1: "the most secure backend available; consulted first").
type keyringBackend struct {
	// index tracks known keys so List can enumerate them, since most OS
	// keyrings (Secret Service, Keychain, wincred) have no native
	// list-by-prefix operation. Persisted as its own keyring entry.
	indexService string
}

func newKeyringBackend() *keyringBackend {
	return &keyringBackend{indexService: "plurcast.index"}
}

func (k *keyringBackend) name() string { return "keyring" }

func (k *keyringBackend) store(_ context.Context, key Key, value string) error {
	if err := keyring.Set(key.service(), key.CredentialType, value); err != nil {
		return errWrap(err)
	}
	return k.addToIndex(key)
}

func (k *keyringBackend) retrieve(_ context.Context, key Key) (string, error) {
	value, err := keyring.Get(key.service(), key.CredentialType)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", errWrap(err)
	}
	return value, nil
}

func (k *keyringBackend) delete(_ context.Context, key Key) error {
	if err := keyring.Delete(key.service(), key.CredentialType); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return errWrap(err)
	}
	return k.removeFromIndex(key)
}

func (k *keyringBackend) list(_ context.Context) ([]Key, error) {
	raw, err := keyring.Get(k.indexService, "index")
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, errWrap(err)
	}
	return decodeIndex(raw), nil
}

func (k *keyringBackend) addToIndex(key Key) error {
	keys, err := k.list(context.Background())
	if err != nil {
		return err
	}
	for _, existing := range keys {
		if existing == key {
			return nil
		}
	}
	keys = append(keys, key)
	return keyring.Set(k.indexService, "index", encodeIndex(keys))
}

func (k *keyringBackend) removeFromIndex(key Key) error {
	keys, err := k.list(context.Background())
	if err != nil {
		return err
	}
	out := keys[:0]
	for _, existing := range keys {
		if existing != key {
			out = append(out, existing)
		}
	}
	return keyring.Set(k.indexService, "index", encodeIndex(out))
}

// encodeIndex/decodeIndex serialize the key index as a simple delimited
// line format; no credential values ever pass through it.
func encodeIndex(keys []Key) string {
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = strings.Join([]string{k.Platform, k.Account, k.CredentialType}, "\x1f")
	}
	return strings.Join(lines, "\n")
}

func decodeIndex(raw string) []Key {
	if raw == "" {
		return nil
	}
	var keys []Key
	for _, line := range strings.Split(raw, "\n") {
		parts := strings.Split(line, "\x1f")
		if len(parts) != 3 {
			continue
		}
		keys = append(keys, Key{Platform: parts[0], Account: parts[1], CredentialType: parts[2]})
	}
	return keys
}

func errWrap(err error) error {
	return errors.Join(ErrBackendUnavailable, err)
}
