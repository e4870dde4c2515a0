package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrNotOpened is returned when a data method runs before Open or after
// Close. This indicates a wiring bug, not a runtime condition.
var ErrNotOpened = errors.New("database has not been opened")

// DB wraps the embedded SQLite handle used for expiry bookkeeping.
// SQLite allows only one writer at a time, so all writes serialize
// through mu; reads share the same discipline for simplicity.
type DB struct {
	path string

	mu   sync.Mutex
	conn *sql.DB
}

// New creates an unopened DB for the SQLite file at path.
func New(path string) *DB {
	return &DB{path: path}
}

// Open opens the SQLite file and ensures the files table exists. It is
// idempotent at startup: opening an already-opened DB is a no-op. Open
// returning nil is the signal that the store is ready.
func (db *DB) Open() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn != nil {
		return nil
	}

	conn, err := sql.Open("sqlite", db.path)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", db.path, err)
	}

	if _, err := conn.Exec(
		"CREATE TABLE IF NOT EXISTS files (termination_time INTEGER, filename TEXT)",
	); err != nil {
		conn.Close()
		return fmt.Errorf("failed to create files table: %w", err)
	}

	db.conn = conn
	slog.Info("database opened", "path", db.path)
	return nil
}

// Close releases the underlying handle.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn == nil {
		return ErrNotOpened
	}

	err := db.conn.Close()
	db.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// exec runs fn with the open connection while holding the write lock.
func (db *DB) exec(fn func(conn *sql.DB) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn == nil {
		return ErrNotOpened
	}
	return fn(db.conn)
}
