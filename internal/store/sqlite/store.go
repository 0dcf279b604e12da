// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bastion-dev/bastion/internal/store"
)

// Compile-time interface checks.
var (
	_ store.Store        = (*Store)(nil)
	_ store.HistoryStore = (*historyStore)(nil)
	_ store.AuditStore   = (*auditStore)(nil)
	_ store.KeyStore     = (*keyStore)(nil)
)

// Store implements store.Store backed by a single SQLite database.
type Store struct {
	db      *sql.DB
	history *historyStore
	audit   *auditStore
	keys    *keyStore
}

// NewStore opens (or creates) a SQLite database at dbPath and initialises
// the history, audit_log, and api_keys tables.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating sqlite db: %w", err)
	}

	return &Store{
		db:      db,
		history: newHistoryStore(db),
		audit:   &auditStore{db: db},
		keys:    &keyStore{db: db},
	}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS history (
	scope_key  TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	sender     TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	PRIMARY KEY (scope_key, seq)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id        TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	action    TEXT NOT NULL DEFAULT '',
	actor     TEXT NOT NULL DEFAULT '',
	tool      TEXT NOT NULL DEFAULT '',
	scope     TEXT NOT NULL DEFAULT '',
	details   TEXT NOT NULL DEFAULT '{}',
	result    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_log_action    ON audit_log(action);
CREATE INDEX IF NOT EXISTS idx_audit_log_actor     ON audit_log(actor);

CREATE TABLE IF NOT EXISTS api_keys (
	key_id      TEXT PRIMARY KEY,
	secret_hash TEXT NOT NULL,
	prefix      TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	revoked_at  TEXT
);
`
	_, err := db.Exec(ddl)
	return err
}

// History returns the HistoryStore sub-store.
func (s *Store) History() store.HistoryStore { return s.history }

// AuditLog returns the AuditStore sub-store.
func (s *Store) AuditLog() store.AuditStore { return s.audit }

// Keys returns the KeyStore sub-store.
func (s *Store) Keys() store.KeyStore { return s.keys }

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// formatTime serialises a time.Time for storage.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime deserialises a time string stored in the database.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
