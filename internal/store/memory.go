// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

func init() {
	RegisterBackend("memory", func(string) (Store, error) {
		return NewMemoryStore(), nil
	})
}

// memoryStore is a non-durable Store used by tests and the "memory" backend.
type memoryStore struct {
	history *memoryHistoryStore
	audit   *memoryAuditStore
	keys    *memoryKeyStore
}

// NewMemoryStore creates an in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{
		history: &memoryHistoryStore{scopes: map[string]*memoryScope{}},
		audit:   &memoryAuditStore{},
		keys:    &memoryKeyStore{byID: map[string]*APIKey{}},
	}
}

func (m *memoryStore) History() HistoryStore { return m.history }
func (m *memoryStore) AuditLog() AuditStore  { return m.audit }
func (m *memoryStore) Keys() KeyStore        { return m.keys }
func (m *memoryStore) Close() error          { return nil }

// --- History ---

// memoryHistoryStore keeps one lock per scope, matching the sqlite
// backend: writers to the same scope serialize for gap-free sequence
// assignment, different scopes never block each other. The store-level
// mutex guards only the scope map itself.
type memoryHistoryStore struct {
	mu     sync.Mutex
	scopes map[string]*memoryScope
}

type memoryScope struct {
	mu      sync.Mutex
	records []*HistoryRecord
}

var _ HistoryStore = (*memoryHistoryStore)(nil)

func (s *memoryHistoryStore) scopeFor(key string) *memoryScope {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.scopes[key]
	if !ok {
		sc = &memoryScope{}
		s.scopes[key] = sc
	}
	return sc
}

func (s *memoryHistoryStore) Append(_ context.Context, scope Scope, rec *HistoryRecord) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if rec == nil || rec.Role == "" {
		return fmt.Errorf("history record requires a role: %w", ErrInvalidInput)
	}

	sc := s.scopeFor(scope.Key())
	sc.mu.Lock()
	defer sc.mu.Unlock()

	cp := *rec
	cp.Seq = int64(len(sc.records)) + 1
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	sc.records = append(sc.records, &cp)
	rec.Seq = cp.Seq
	rec.CreatedAt = cp.CreatedAt
	return nil
}

func (s *memoryHistoryStore) Read(_ context.Context, scope Scope, lookback int) ([]*HistoryRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if lookback <= 0 {
		return []*HistoryRecord{}, nil
	}

	sc := s.scopeFor(scope.Key())
	sc.mu.Lock()
	defer sc.mu.Unlock()

	start := len(sc.records) - lookback
	if start < 0 {
		start = 0
	}
	out := make([]*HistoryRecord, 0, len(sc.records)-start)
	for _, r := range sc.records[start:] {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memoryHistoryStore) Stats(_ context.Context, scope Scope) (*ScopeStats, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	sc := s.scopeFor(scope.Key())
	sc.mu.Lock()
	defer sc.mu.Unlock()

	stats := &ScopeStats{Records: int64(len(sc.records))}
	if len(sc.records) > 0 {
		stats.LatestSeq = sc.records[len(sc.records)-1].Seq
	}
	return stats, nil
}

func (s *memoryHistoryStore) Clear(_ context.Context, scope Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	// The scope entry stays so a writer holding its lock never appends
	// into an orphaned slice; records are dropped in place.
	sc := s.scopeFor(scope.Key())
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.records = nil
	return nil
}

// --- Audit ---

type memoryAuditStore struct {
	mu      sync.Mutex
	entries []*AuditEntry
}

var _ AuditStore = (*memoryAuditStore)(nil)

func (s *memoryAuditStore) Append(_ context.Context, entry *AuditEntry) error {
	if entry == nil || entry.Action == "" {
		return fmt.Errorf("audit entry requires an action: %w", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now().UTC()
	}
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *memoryAuditStore) Query(_ context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]*AuditEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		if filter.Tool != "" && e.Tool != filter.Tool {
			continue
		}
		if !filter.From.IsZero() && e.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && e.Timestamp.After(filter.To) {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}

	// Most recent first, matching the sqlite backend's ordering.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*AuditEntry{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// --- Keys ---

type memoryKeyStore struct {
	mu   sync.Mutex
	byID map[string]*APIKey
	ids  []string
}

var _ KeyStore = (*memoryKeyStore)(nil)

func (s *memoryKeyStore) Insert(_ context.Context, key *APIKey) error {
	if key == nil || key.KeyID == "" || key.SecretHash == "" {
		return fmt.Errorf("api key requires key_id and secret_hash: %w", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[key.KeyID]; exists {
		return fmt.Errorf("key %s: %w", key.KeyID, ErrConflict)
	}
	cp := *key
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.byID[cp.KeyID] = &cp
	s.ids = append(s.ids, cp.KeyID)
	return nil
}

func (s *memoryKeyStore) Get(_ context.Context, keyID string) (*APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byID[keyID]
	if !ok {
		return nil, fmt.Errorf("key %s: %w", keyID, ErrNotFound)
	}
	cp := *key
	return &cp, nil
}

func (s *memoryKeyStore) List(_ context.Context) ([]*APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*APIKey, 0, len(s.ids))
	for _, id := range s.ids {
		cp := *s.byID[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memoryKeyStore) Revoke(_ context.Context, keyID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byID[keyID]
	if !ok {
		return fmt.Errorf("key %s: %w", keyID, ErrNotFound)
	}
	if key.RevokedAt == nil {
		revoked := at
		key.RevokedAt = &revoked
	}
	return nil
}
