// Package credential implements the three-tier Credential Store described
// in spec §4.1: an OS keyring backend, a passphrase-encrypted file backend,
// and a deprecated plaintext file backend, resolved in that priority order.
package credential

import (
	"context"
	"errors"
	"fmt"
)

// Errors returned by backend and Store operations. The taxonomy mirrors
// spec §7's credential_not_found / credential_backend_unavailable classes.
var (
	ErrNotFound           = errors.New("credential: not found")
	ErrBackendUnavailable = errors.New("credential: backend unavailable")
	ErrOverwriteRequires  = errors.New("credential: overwrite requires force")
)

// Key identifies one credential entry.
type Key struct {
	Platform       string
	Account        string
	CredentialType string
}

// service returns the flattened service string used by the keyring backend
// and as the file-naming input for the file-based backends
// (spec §3: "plurcast.{platform}.{account_name}").
func (k Key) service() string {
	return fmt.Sprintf("plurcast.%s.%s", k.Platform, k.Account)
}

// backend is the interface each storage tier implements. It never logs or
// returns the secret value in an error.
type backend interface {
	name() string
	store(ctx context.Context, key Key, value string) error
	retrieve(ctx context.Context, key Key) (string, error)
	delete(ctx context.Context, key Key) error
	list(ctx context.Context) ([]Key, error)
}

// Store is the Credential Store: a configured backend plus the lower-
// security backends it may fall back to on read.
type Store struct {
	configured backend
	fallbacks  []backend // tried in order, read-only fallback
}

// tierOrder is the full priority list, highest security first
// (spec §4.1: keyring > encrypted-file > plaintext-file).
func tierOrder(keyring, encrypted, plain backend) []backend {
	return []backend{keyring, encrypted, plain}
}

// New builds a Store whose configured (write) backend is selected by
// configuredName ("keyring", "encrypted", or "plain"). All three backend
// implementations are constructed so that reads can fall back to
// lower-security tiers per spec policy.
func New(configuredName string, keyring, encrypted, plain backend) (*Store, error) {
	order := tierOrder(keyring, encrypted, plain)

	var configured backend
	var idx int
	for i, b := range order {
		if b.name() == configuredName {
			configured = b
			idx = i
			break
		}
	}
	if configured == nil {
		return nil, fmt.Errorf("credential: unknown backend %q", configuredName)
	}

	return &Store{
		configured: configured,
		fallbacks:  order[idx+1:],
	}, nil
}

// StoreValue writes value to the configured backend. If a value already
// exists at key and force is false, it fails with ErrOverwriteRequires
// (spec §4.1: "non-interactive overwrite fails unless the caller provided
// a force flag").
func (s *Store) StoreValue(ctx context.Context, key Key, value string, force bool) error {
	if !force {
		if _, err := s.configured.retrieve(ctx, key); err == nil {
			return fmt.Errorf("%w: %s", ErrOverwriteRequires, key.service())
		}
	}
	if err := s.configured.store(ctx, key, value); err != nil {
		return fmt.Errorf("credential: storing %s/%s: %w", key.service(), key.CredentialType, err)
	}
	return nil
}

// Retrieve reads a value from the configured backend, falling back to
// lower-security backends on a not-found result only (spec §4.1 policy).
func (s *Store) Retrieve(ctx context.Context, key Key) (string, error) {
	value, err := s.configured.retrieve(ctx, key)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	for _, fb := range s.fallbacks {
		value, err = fb.retrieve(ctx, key)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s/%s", ErrNotFound, key.service(), key.CredentialType)
}

// Delete removes a credential from the configured backend.
func (s *Store) Delete(ctx context.Context, key Key) error {
	return s.configured.delete(ctx, key)
}

// Exists reports whether a credential can be resolved (configured backend
// or any fallback).
func (s *Store) Exists(ctx context.Context, key Key) bool {
	_, err := s.Retrieve(ctx, key)
	return err == nil
}

// List returns every (platform, account, credential_type) tuple visible
// across the configured backend and its fallbacks, without values.
func (s *Store) List(ctx context.Context) ([]Key, error) {
	seen := map[Key]bool{}
	var out []Key

	backends := append([]backend{s.configured}, s.fallbacks...)
	for _, b := range backends {
		keys, err := b.list(ctx)
		if err != nil {
			continue
		}
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out, nil
}

// Migrate discovers entries in the plaintext and encrypted backends that
// aren't yet present in the configured backend, copies them in, verifies
// by read-back, then (with consent from the caller) deletes the originals.
// Deletion failures are non-fatal and returned as warnings (spec §4.1).
func (s *Store) Migrate(ctx context.Context, deleteOriginals bool) (migrated int, warnings []string, err error) {
	for _, fb := range s.fallbacks {
		keys, listErr := fb.list(ctx)
		if listErr != nil {
			warnings = append(warnings, fmt.Sprintf("listing %s backend: %v", fb.name(), listErr))
			continue
		}

		for _, k := range keys {
			if _, getErr := s.configured.retrieve(ctx, k); getErr == nil {
				continue // already present in the configured backend
			}

			value, getErr := fb.retrieve(ctx, k)
			if getErr != nil {
				warnings = append(warnings, fmt.Sprintf("reading %s from %s: %v", k.service(), fb.name(), getErr))
				continue
			}

			if storeErr := s.configured.store(ctx, k, value); storeErr != nil {
				warnings = append(warnings, fmt.Sprintf("writing %s to configured backend: %v", k.service(), storeErr))
				continue
			}

			verified, verifyErr := s.configured.retrieve(ctx, k)
			if verifyErr != nil || verified != value {
				warnings = append(warnings, fmt.Sprintf("verifying %s after migration failed", k.service()))
				continue
			}

			migrated++

			if deleteOriginals {
				if delErr := fb.delete(ctx, k); delErr != nil {
					warnings = append(warnings, fmt.Sprintf("deleting original %s from %s: %v", k.service(), fb.name(), delErr))
				}
			}
		}
	}
	return migrated, warnings, nil
}
