package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// RegisterAccount creates an account entry if it doesn't already exist
// (spec §4.2 register). It is idempotent: registering an existing account
// is a no-op, not an error.
func (s *Store) RegisterAccount(ctx context.Context, platform, accountName string, createdAt int64) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO accounts (platform, account_name, active, created_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT (platform, account_name) DO NOTHING
	`, platform, accountName, createdAt)
	if err != nil {
		return fmt.Errorf("store: registering account %s/%s: %w", platform, accountName, err)
	}
	return nil
}

// UseAccount marks (platform, accountName) active and deactivates any other
// account for that platform, atomically (spec §4.2: "only one active per
// platform").
func (s *Store) UseAccount(ctx context.Context, platform, accountName string) error {
	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE accounts SET active = 0 WHERE platform = ?`, platform); err != nil {
			return fmt.Errorf("deactivating existing accounts for %s: %w", platform, err)
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE accounts SET active = 1 WHERE platform = ? AND account_name = ?
		`, platform, accountName)
		if err != nil {
			return fmt.Errorf("activating account %s/%s: %w", platform, accountName, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking activation result: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("account %s/%s is not registered", platform, accountName)
		}
		return nil
	})
}

// ActiveAccount returns the active account name for platform, or "" if none.
func (s *Store) ActiveAccount(ctx context.Context, platform string) (string, error) {
	var name string
	err := s.DB.GetContext(ctx, &name, `
		SELECT account_name FROM accounts WHERE platform = ? AND active = 1
	`, platform)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: getting active account for %s: %w", platform, err)
	}
	return name, nil
}

// AccountExists reports whether (platform, accountName) is registered.
func (s *Store) AccountExists(ctx context.Context, platform, accountName string) (bool, error) {
	var n int
	err := s.DB.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM accounts WHERE platform = ? AND account_name = ?
	`, platform, accountName)
	if err != nil {
		return false, fmt.Errorf("store: checking account %s/%s: %w", platform, accountName, err)
	}
	return n > 0, nil
}

// ListAccounts returns every registered account.
func (s *Store) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := s.DB.SelectContext(ctx, &accounts, `SELECT * FROM accounts ORDER BY platform, account_name`); err != nil {
		return nil, fmt.Errorf("store: listing accounts: %w", err)
	}
	return accounts, nil
}
