// Package account implements the Account Registry: the mapping from
// (platform, account name) to a usable credential, one active account
// per platform, and account resolution for post targets (spec §4.2).
package account

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/plurcast/plurcast/internal/credential"
	"github.com/plurcast/plurcast/internal/store"
)

// ErrAuthentication is returned when no account can be resolved for a
// platform — the caller should surface this as spec §7's authentication
// error class.
var ErrAuthentication = errors.New("account: no usable account for platform")

// SharedTestAccountEnvVar gates the built-in shared-test account so it can
// never be addressed by accident in a normal user's environment.
const SharedTestAccountEnvVar = "PLURCAST_ENABLE_SHARED_TEST_ACCOUNT"

// SharedTestAccountName is the only name the shared-test account can be
// addressed by, and only when explicitly requested (spec §4.2).
const SharedTestAccountName = "shared-test"

// Registry wraps the durable store and credential store to provide
// register/use/resolve semantics.
type Registry struct {
	store *store.Store
	creds *credential.Store
}

func New(s *store.Store, creds *credential.Store) *Registry {
	return &Registry{store: s, creds: creds}
}

// Register creates an account entry. Idempotent: registering an existing
// account name is a no-op. A registered account still requires a
// subsequent credential store call before it is usable.
func (r *Registry) Register(ctx context.Context, platform, accountName string, createdAt int64) error {
	return r.store.RegisterAccount(ctx, platform, accountName, createdAt)
}

// Use marks accountName active for platform, deactivating any other
// account for that platform.
func (r *Registry) Use(ctx context.Context, platform, accountName string) error {
	return r.store.UseAccount(ctx, platform, accountName)
}

// Resolve picks the account to use for (platform), honoring requested if
// non-empty, else the active account, else "default" if it has
// credentials, else fails with ErrAuthentication (spec §4.2 resolve).
//
// "shared-test" is resolved only when requested explicitly and gated by
// SharedTestAccountEnvVar; it never participates in the active/default
// fallback chain.
func (r *Registry) Resolve(ctx context.Context, platform, requested string) (string, error) {
	if requested == SharedTestAccountName {
		if os.Getenv(SharedTestAccountEnvVar) != "1" {
			return "", fmt.Errorf("%w: shared-test account is disabled (set %s=1 to enable)", ErrAuthentication, SharedTestAccountEnvVar)
		}
		return SharedTestAccountName, nil
	}

	if requested != "" {
		if r.hasCredentials(ctx, platform, requested) {
			return requested, nil
		}
		return "", fmt.Errorf("%w: account %q has no credentials for platform %q", ErrAuthentication, requested, platform)
	}

	active, err := r.store.ActiveAccount(ctx, platform)
	if err != nil {
		return "", fmt.Errorf("account: resolving active account: %w", err)
	}
	if active != "" && r.hasCredentials(ctx, platform, active) {
		return active, nil
	}

	const defaultAccount = "default"
	if r.hasCredentials(ctx, platform, defaultAccount) {
		return defaultAccount, nil
	}

	return "", fmt.Errorf("%w: platform %q", ErrAuthentication, platform)
}

// hasCredentials reports whether at least one credential is stored for
// (platform, account), across any resolution tier.
func (r *Registry) hasCredentials(ctx context.Context, platform, account string) bool {
	keys, err := r.creds.List(ctx)
	if err != nil {
		return false
	}
	for _, k := range keys {
		if k.Platform == platform && k.Account == account {
			return true
		}
	}
	return false
}
