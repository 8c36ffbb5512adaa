package credential

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// scrypt parameters, matching the offline-brute-force-resistant guidance
// for a passphrase-derived key (N=2^15, r=8, p=1).
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = chacha20poly1305.KeySize
	saltSize     = 16
)

// encryptedEnvelope is the plaintext JSON sealed inside each credential
// file, bound to its key so a file moved or renamed can't be misattributed.
type encryptedEnvelope struct {
	Platform       string `json:"platform"`
	Account        string `json:"account"`
	CredentialType string `json:"credential_type"`
	Value          string `json:"value"`
}

// encryptedBackend is the passphrase-protected file backend. One file per
// credential, named by a hash of its key tuple, under dir.
type encryptedBackend struct {
	dir        string
	passphrase func() (string, error)
}

func newEncryptedBackend(dir string, passphrase func() (string, error)) *encryptedBackend {
	return &encryptedBackend{dir: dir, passphrase: passphrase}
}

func (e *encryptedBackend) name() string { return "encrypted" }

// fileName hashes the key tuple with sha256, following the teacher's
// hashPAT pattern for deriving a stable, non-reversible on-disk name.
func fileName(key Key) string {
	sum := sha256.Sum256([]byte(key.Platform + "\x00" + key.Account + "\x00" + key.CredentialType))
	return hex.EncodeToString(sum[:]) + ".cred"
}

func (e *encryptedBackend) path(key Key) string {
	return filepath.Join(e.dir, fileName(key))
}

func (e *encryptedBackend) store(_ context.Context, key Key, value string) error {
	pass, err := e.passphrase()
	if err != nil {
		return fmt.Errorf("encrypted backend: %w", errors.Join(ErrBackendUnavailable, err))
	}

	if err := os.MkdirAll(e.dir, 0o700); err != nil {
		return fmt.Errorf("encrypted backend: creating %s: %w", e.dir, err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("encrypted backend: generating salt: %w", err)
	}
	derivedKey, err := scrypt.Key([]byte(pass), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return fmt.Errorf("encrypted backend: deriving key: %w", err)
	}

	aead, err := chacha20poly1305.New(derivedKey)
	if err != nil {
		return fmt.Errorf("encrypted backend: building cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("encrypted backend: generating nonce: %w", err)
	}

	plaintext, err := json.Marshal(encryptedEnvelope{
		Platform:       key.Platform,
		Account:        key.Account,
		CredentialType: key.CredentialType,
		Value:          value,
	})
	if err != nil {
		return fmt.Errorf("encrypted backend: marshaling envelope: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, saltSize+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)

	if err := os.WriteFile(e.path(key), out, 0o600); err != nil {
		return fmt.Errorf("encrypted backend: writing %s: %w", e.path(key), err)
	}
	return nil
}

func (e *encryptedBackend) retrieve(_ context.Context, key Key) (string, error) {
	raw, err := os.ReadFile(e.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("encrypted backend: reading %s: %w", e.path(key), err)
	}

	pass, err := e.passphrase()
	if err != nil {
		return "", fmt.Errorf("encrypted backend: %w", errors.Join(ErrBackendUnavailable, err))
	}

	if len(raw) < saltSize+chacha20poly1305.NonceSize {
		return "", fmt.Errorf("encrypted backend: %s is truncated", e.path(key))
	}
	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+chacha20poly1305.NonceSize]
	sealed := raw[saltSize+chacha20poly1305.NonceSize:]

	derivedKey, err := scrypt.Key([]byte(pass), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("encrypted backend: deriving key: %w", err)
	}
	aead, err := chacha20poly1305.New(derivedKey)
	if err != nil {
		return "", fmt.Errorf("encrypted backend: building cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("encrypted backend: decrypting %s: incorrect passphrase or corrupted file", e.path(key))
	}

	var env encryptedEnvelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return "", fmt.Errorf("encrypted backend: unmarshaling envelope: %w", err)
	}
	return env.Value, nil
}

func (e *encryptedBackend) delete(_ context.Context, key Key) error {
	if err := os.Remove(e.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("encrypted backend: removing %s: %w", e.path(key), err)
	}
	return nil
}

// list decrypts every file's envelope to recover its key tuple, since the
// sha256 filename alone doesn't reveal it.
func (e *encryptedBackend) list(ctx context.Context) ([]Key, error) {
	entries, err := os.ReadDir(e.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("encrypted backend: listing %s: %w", e.dir, err)
	}

	pass, err := e.passphrase()
	if err != nil {
		return nil, fmt.Errorf("encrypted backend: %w", errors.Join(ErrBackendUnavailable, err))
	}

	var keys []Key
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".cred" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(e.dir, entry.Name()))
		if err != nil {
			continue
		}
		if len(raw) < saltSize+chacha20poly1305.NonceSize {
			continue
		}
		salt := raw[:saltSize]
		nonce := raw[saltSize : saltSize+chacha20poly1305.NonceSize]
		sealed := raw[saltSize+chacha20poly1305.NonceSize:]
		derivedKey, err := scrypt.Key([]byte(pass), salt, scryptN, scryptR, scryptP, scryptKeyLen)
		if err != nil {
			continue
		}
		aead, err := chacha20poly1305.New(derivedKey)
		if err != nil {
			continue
		}
		plaintext, err := aead.Open(nil, nonce, sealed, nil)
		if err != nil {
			continue
		}
		var env encryptedEnvelope
		if err := json.Unmarshal(plaintext, &env); err != nil {
			continue
		}
		keys = append(keys, Key{Platform: env.Platform, Account: env.Account, CredentialType: env.CredentialType})
	}
	return keys, nil
}
