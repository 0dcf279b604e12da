// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/bastion-dev/bastion/internal/store"
)

// historyStore implements store.HistoryStore.
//
// Appends to the same scope are serialized by a per-scope mutex so the
// MAX(seq)+1 assignment stays gap-free under concurrent writers; different
// scopes take different mutexes and never block each other.
type historyStore struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newHistoryStore(db *sql.DB) *historyStore {
	return &historyStore{db: db, locks: map[string]*sync.Mutex{}}
}

func (s *historyStore) scopeLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *historyStore) Append(ctx context.Context, scope store.Scope, rec *store.HistoryRecord) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if rec == nil || rec.Role == "" {
		return fmt.Errorf("history record requires a role: %w", store.ErrInvalidInput)
	}

	key := scope.Key()
	lock := s.scopeLock(key)
	lock.Lock()
	defer lock.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx for scope %s: %w", key, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var latest int64
	const seqQ = `SELECT COALESCE(MAX(seq), 0) FROM history WHERE scope_key = ?`
	if err := tx.QueryRowContext(ctx, seqQ, key).Scan(&latest); err != nil {
		return fmt.Errorf("reading latest seq for scope %s: %w", key, err)
	}

	const insertQ = `INSERT INTO history (scope_key, seq, role, content, sender, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, insertQ,
		key, latest+1, string(rec.Role), rec.Content, rec.Sender, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("appending record to scope %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append to scope %s: %w", key, err)
	}

	rec.Seq = latest + 1
	return nil
}

func (s *historyStore) Read(ctx context.Context, scope store.Scope, lookback int) ([]*store.HistoryRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if lookback <= 0 {
		return []*store.HistoryRecord{}, nil
	}

	// Sub-select the N most recent, then re-order chronologically.
	const q = `SELECT seq, role, content, sender, created_at
FROM (
	SELECT seq, role, content, sender, created_at
	FROM history WHERE scope_key = ?
	ORDER BY seq DESC LIMIT ?
) ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, q, scope.Key(), lookback)
	if err != nil {
		return nil, fmt.Errorf("reading history for scope %s: %w", scope.Key(), err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	records := []*store.HistoryRecord{}
	for rows.Next() {
		var rec store.HistoryRecord
		var createdAt string
		if err := rows.Scan(&rec.Seq, &rec.Role, &rec.Content, &rec.Sender, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		rec.CreatedAt, err = ParseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing record %d created_at: %w", rec.Seq, err)
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

func (s *historyStore) Stats(ctx context.Context, scope store.Scope) (*store.ScopeStats, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	const q = `SELECT COUNT(*), COALESCE(MAX(seq), 0) FROM history WHERE scope_key = ?`

	var stats store.ScopeStats
	if err := s.db.QueryRowContext(ctx, q, scope.Key()).Scan(&stats.Records, &stats.LatestSeq); err != nil {
		return nil, fmt.Errorf("reading stats for scope %s: %w", scope.Key(), err)
	}
	return &stats, nil
}

func (s *historyStore) Clear(ctx context.Context, scope store.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	key := scope.Key()
	lock := s.scopeLock(key)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE scope_key = ?`, key); err != nil {
		return fmt.Errorf("clearing scope %s: %w", key, err)
	}
	return nil
}
