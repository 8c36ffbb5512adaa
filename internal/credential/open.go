package credential

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/plurcast/plurcast/internal/config"
)

// Open builds the three-tier Store wired to cfg.Credentials (spec §4.1),
// with the file-based backends rooted at the directory that contains
// cfg.Credentials.Path: encrypted files go under its credentials/
// subdirectory and plaintext records into its credentials.jsonl. The
// passphrase for the encrypted backend is resolved lazily, only when a
// store/retrieve/list call actually needs it, via config.CredentialPassphrase.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Credentials.Path)
	encryptedDir := filepath.Join(dir, "credentials")
	plainPath := filepath.Join(dir, "credentials.jsonl")

	passphrase := func() (string, error) {
		p, ok := config.CredentialPassphrase()
		if !ok {
			return "", errors.New("no credential passphrase available (set " + config.PassphraseEnvVar + " or supply it interactively)")
		}
		return p, nil
	}

	keyring := newKeyringBackend()
	encrypted := newEncryptedBackend(encryptedDir, passphrase)
	plain := newPlainBackend(plainPath, logger)

	store, err := New(string(cfg.Credentials.Storage), keyring, encrypted, plain)
	if err != nil {
		return nil, fmt.Errorf("credential: opening store: %w", err)
	}
	return store, nil
}
