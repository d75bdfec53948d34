package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"karabook/internal/clock"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps the SQLite store. All mutual exclusion for slot allocation
// lives in the write transaction (SQLite serializes writers); state
// transitions are guarded by the version token instead of locks.
type DB struct {
	db     *sql.DB
	clock  clock.Clock
	logger *zerolog.Logger
}

func NewDB(path string, clk clock.Clock, logger *zerolog.Logger) (*DB, error) {
	if clk == nil {
		clk = clock.System
	}

	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// _txlock=immediate takes the write lock at BEGIN so the overlap
	// check and the insert in AllocateReservation cannot interleave.
	dsn := path + "?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{db: db, clock: clk, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT UNIQUE NOT NULL,
            capacity INTEGER NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS reservations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            room_id INTEGER NOT NULL REFERENCES rooms(id),
            guest_name TEXT NOT NULL,
            guest_phone TEXT NOT NULL,
            party_size INTEGER NOT NULL DEFAULT 1,
            start_time INTEGER NOT NULL,
            end_time INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            payment_intent_id TEXT NOT NULL DEFAULT '',
            amount_cents INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,

		// The dedup ledger: append only, provider_event_id unique.
		`CREATE TABLE IF NOT EXISTS payment_events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            provider_event_id TEXT UNIQUE NOT NULL,
            reservation_id INTEGER NOT NULL REFERENCES reservations(id),
            kind TEXT NOT NULL,
            payload TEXT NOT NULL DEFAULT '',
            applied BOOLEAN NOT NULL DEFAULT 0,
            received_at DATETIME NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS waitlist (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            guest_name TEXT NOT NULL,
            guest_phone TEXT NOT NULL,
            party_size INTEGER NOT NULL DEFAULT 1,
            status TEXT NOT NULL DEFAULT 'waiting',
            requested_at DATETIME NOT NULL,
            expires_at DATETIME NOT NULL,
            notified_at DATETIME,
            updated_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_room_time ON reservations(room_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_updated ON reservations(status, updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_events_reservation ON payment_events(reservation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_waitlist_status ON waitlist(status, expires_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("exec %q: %w", query[:40], err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// now returns the injected clock's time in UTC. Every row timestamp
// goes through here so TTL comparisons stay format-consistent.
func (db *DB) now() time.Time {
	return db.clock.Now().UTC()
}
