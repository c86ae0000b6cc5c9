package resource

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// pragmas are applied to every connection in order. journal_mode is left
// as "memory" by SQLite for in-memory databases.
var pragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// migrations[i] upgrades a database from user_version i to i+1. The
// embedded schema always reflects the latest version, so every migration
// must be a no-op on a freshly created database.
var migrations = []func(*sql.DB) error{
	migrateClientIndex,
}

// Store persists resources: the current elements of each resource, its
// revision counter and an append-only log of every applied write.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path (":memory:" for a
// private in-memory database) and brings its schema up to date. Opening
// the same file again is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, storageError("open", "", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageError("open", "", fmt.Errorf("connect to %s: %w", path, err))
	}

	// One connection: SQLite has a single writer, and an in-memory
	// database lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initialize(db); err != nil {
		db.Close()
		return nil, storageError("open", "", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initialize(db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return migrate(db)
}

// migrate runs the migrations past the database's user_version and
// records the new version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for v := version; v < len(migrations); v++ {
		if err := migrations[v](db); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	if version == len(migrations) {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
		return fmt.Errorf("write user_version: %w", err)
	}
	return nil
}

// migrateClientIndex indexes the change log by originating client.
func migrateClientIndex(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_element_log_client ON element_log(client_id)`)
	return err
}

// verifyPragma checks that a pragma reads back as expected.
func (s *Store) verifyPragma(ctx context.Context, name, expected string) error {
	var value string
	if err := s.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
