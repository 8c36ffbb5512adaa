package credential

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// plainRecord is one line of the deprecated plaintext JSONL file.
type plainRecord struct {
	Platform       string `json:"platform"`
	Account        string `json:"account"`
	CredentialType string `json:"credential_type"`
	Value          string `json:"value"`
}

// plainBackend stores every credential in cleartext, one JSON object per
// line, in a single file (spec §4.1: deprecated, logs a warning on every
// access, never on the value itself).
type plainBackend struct {
	path   string
	logger *slog.Logger
}

func newPlainBackend(path string, logger *slog.Logger) *plainBackend {
	return &plainBackend{path: path, logger: logger}
}

func (p *plainBackend) name() string { return "plain" }

func (p *plainBackend) warn(op string) {
	p.logger.Warn("plaintext credential backend in use", "operation", op, "path", p.path)
}

func (p *plainBackend) readAll() ([]plainRecord, error) {
	f, err := os.Open(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("plaintext backend: reading %s: %w", p.path, err)
	}
	defer f.Close()

	var records []plainRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var r plainRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("plaintext backend: scanning %s: %w", p.path, err)
	}
	return records, nil
}

func (p *plainBackend) writeAll(records []plainRecord) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("plaintext backend: creating %s: %w", filepath.Dir(p.path), err)
	}

	var buf strings.Builder
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("plaintext backend: marshaling record: %w", err)
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(p.path, []byte(buf.String()), 0o600); err != nil {
		return fmt.Errorf("plaintext backend: writing %s: %w", p.path, err)
	}
	return nil
}

func matches(r plainRecord, key Key) bool {
	return r.Platform == key.Platform && r.Account == key.Account && r.CredentialType == key.CredentialType
}

func (p *plainBackend) store(_ context.Context, key Key, value string) error {
	p.warn("store")
	records, err := p.readAll()
	if err != nil {
		return err
	}
	found := false
	for i, r := range records {
		if matches(r, key) {
			records[i].Value = value
			found = true
			break
		}
	}
	if !found {
		records = append(records, plainRecord{
			Platform: key.Platform, Account: key.Account, CredentialType: key.CredentialType, Value: value,
		})
	}
	return p.writeAll(records)
}

func (p *plainBackend) retrieve(_ context.Context, key Key) (string, error) {
	p.warn("retrieve")
	records, err := p.readAll()
	if err != nil {
		return "", err
	}
	for _, r := range records {
		if matches(r, key) {
			return r.Value, nil
		}
	}
	return "", ErrNotFound
}

func (p *plainBackend) delete(_ context.Context, key Key) error {
	p.warn("delete")
	records, err := p.readAll()
	if err != nil {
		return err
	}
	out := records[:0]
	for _, r := range records {
		if !matches(r, key) {
			out = append(out, r)
		}
	}
	return p.writeAll(out)
}

func (p *plainBackend) list(_ context.Context) ([]Key, error) {
	p.warn("list")
	records, err := p.readAll()
	if err != nil {
		return nil, err
	}
	keys := make([]Key, len(records))
	for i, r := range records {
		keys[i] = Key{Platform: r.Platform, Account: r.Account, CredentialType: r.CredentialType}
	}
	return keys, nil
}
