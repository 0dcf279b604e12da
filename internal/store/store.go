// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package store

import (
	"context"
	"time"
)

// HistoryStore manages the append-only, scope-partitioned conversation log.
//
// Concurrent appends to the same scope are serialized by the implementation
// so sequence numbers stay gap-free and monotonic; appends to different
// scopes proceed independently.
type HistoryStore interface {
	// Append persists one record and assigns its sequence number.
	Append(ctx context.Context, scope Scope, rec *HistoryRecord) error

	// Read returns the most recent lookback records in chronological order.
	// A lookback of zero returns an empty slice; a lookback exceeding the
	// stored length returns everything available.
	Read(ctx context.Context, scope Scope, lookback int) ([]*HistoryRecord, error)

	// Stats reports the record count and latest sequence for a scope.
	Stats(ctx context.Context, scope Scope) (*ScopeStats, error)

	// Clear purges all records for one scope. Administrative only.
	Clear(ctx context.Context, scope Scope) error
}

// AuditStore manages the append-only audit log.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}

// KeyStore manages persisted API key metadata.
type KeyStore interface {
	Insert(ctx context.Context, key *APIKey) error
	Get(ctx context.Context, keyID string) (*APIKey, error)
	List(ctx context.Context) ([]*APIKey, error)
	Revoke(ctx context.Context, keyID string, at time.Time) error
}

// Store groups the service's persistent subsystems behind one handle.
type Store interface {
	History() HistoryStore
	AuditLog() AuditStore
	Keys() KeyStore
	Close() error
}
