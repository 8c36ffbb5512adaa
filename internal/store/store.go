// Package store is the Durable Store: a single-file SQLite database shared
// by every other component, opened once per process behind a connection
// pool that serializes writers (spec §4.3, §5).
package store

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store wraps the SQLite connection pool and exposes transactional helpers
// used by every other component (Orchestrator, Dispatcher, Rate Limiter,
// Queue Operations).
type Store struct {
	DB *sqlx.DB
}

// Open creates the parent directory if needed, opens the SQLite database at
// path in WAL mode with foreign keys enabled, applies any pending
// migrations, and returns a ready-to-use Store.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("store: creating directory for %s: %w", path, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}

	// SQLite only supports one writer at a time; a single-connection pool
	// avoids SQLITE_BUSY errors from concurrent writers within this process
	// (spec §5: "at most one writer at a time").
	db.SetMaxOpenConns(1)

	if err := migrateUp(db, path); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{DB: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

func migrateUp(db *sqlx.DB, path string) error {
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("store: creating migration driver: %w", err)
	}

	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: opening embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("store: creating migrator for %s: %w", path, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: running migrations on %s: %w", path, err)
	}
	return nil
}
