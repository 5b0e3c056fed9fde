// Package sqlite implements the cache.Store contract on SQLite.
//
// WHY SQLITE FOR A KEY/VALUE CACHE?
// SQLite is an embedded database — it lives inside the binary as a single
// file, with no server to run. A one-table kv layout gives us exactly the
// contract the cache needs (atomic per-key replace, durable across restarts)
// without inventing a file format of our own.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which needs a C compiler and makes
// cross-compilation painful. modernc.org/sqlite is a pure Go translation of
// the SQLite sources — works everywhere Go works.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/qliu/flashsync/internal/cache"
)

// Compile-time check that *DB satisfies the cache contract.
var _ cache.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides the kv methods.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the cache database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/flashsync.db" → file-based, persistent
//   - ":memory:"          → in-memory, lost on close (used by tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Ping forces an immediate connection so a bad path or permissions
	// problem surfaces here, not on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads while a write is in flight.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool. Always defer Close() next to New().
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating kv table: %w", err)
	}
	return nil
}

// Get returns the bytes stored under key, or (nil, nil) if the key is absent.
func (db *DB) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ?`, key,
	).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			// Absence is a valid state, not an error.
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: getting key %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
//
// INSERT OR REPLACE is a single statement, so SQLite applies it in one
// implicit transaction — the key either holds the old bytes or the new
// bytes, never a torn write. Callers marshal BEFORE calling Set, so an
// encoding failure never reaches the database at all.
func (db *DB) Set(ctx context.Context, key string, value []byte) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value, updated_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting key %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is a no-op, not an error.
func (db *DB) Delete(ctx context.Context, key string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("sqlite: deleting key %s: %w", key, err)
	}
	return nil
}
