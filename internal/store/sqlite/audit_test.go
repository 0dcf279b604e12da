// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastion-dev/bastion/internal/store"
)

func appendEntry(t *testing.T, s store.AuditStore, action, actor string, ts time.Time) *store.AuditEntry {
	t.Helper()
	entry := &store.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: ts,
		Action:    action,
		Actor:     actor,
		Result:    "ok",
	}
	require.NoError(t, s.Append(context.Background(), entry))
	return entry
}

func TestAuditAppendAndQuery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	entry := &store.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: now,
		Action:    store.AuditActionToolCall,
		Actor:     "key-1",
		Tool:      "read_file",
		Scope:     "stream:ops/alerts",
		Details:   map[string]any{"path": "/pc/data/notes.txt"},
		Result:    "allowed",
	}
	require.NoError(t, s.AuditLog().Append(ctx, entry))

	entries, err := s.AuditLog().Query(ctx, store.AuditFilter{Action: store.AuditActionToolCall})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, "key-1", got.Actor)
	assert.Equal(t, "read_file", got.Tool)
	assert.Equal(t, "allowed", got.Result)
	assert.Equal(t, "/pc/data/notes.txt", got.Details["path"])
}

func TestAuditQueryMostRecentFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		appendEntry(t, s.AuditLog(), store.AuditActionToolCall, "key-1", base.Add(time.Duration(i)*time.Minute))
	}

	entries, err := s.AuditLog().Query(ctx, store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Timestamp.After(entries[i-1].Timestamp),
			"entries must be ordered most recent first")
	}
}

func TestAuditQueryFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	appendEntry(t, s.AuditLog(), store.AuditActionToolCall, "key-1", now.Add(-3*time.Minute))
	appendEntry(t, s.AuditLog(), store.AuditActionSecurityBlock, "key-1", now.Add(-2*time.Minute))
	appendEntry(t, s.AuditLog(), store.AuditActionAuthFailure, "key-2", now.Add(-time.Minute))

	byAction, err := s.AuditLog().Query(ctx, store.AuditFilter{Action: store.AuditActionSecurityBlock})
	require.NoError(t, err)
	require.Len(t, byAction, 1)
	assert.Equal(t, store.AuditActionSecurityBlock, byAction[0].Action)

	byActor, err := s.AuditLog().Query(ctx, store.AuditFilter{Actor: "key-1"})
	require.NoError(t, err)
	assert.Len(t, byActor, 2)

	byWindow, err := s.AuditLog().Query(ctx, store.AuditFilter{From: now.Add(-90 * time.Second)})
	require.NoError(t, err)
	require.Len(t, byWindow, 1)
	assert.Equal(t, store.AuditActionAuthFailure, byWindow[0].Action)
}

func TestAuditQueryLimitAndOffset(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		appendEntry(t, s.AuditLog(), store.AuditActionToolCall, fmt.Sprintf("key-%d", i), base.Add(time.Duration(i)*time.Second))
	}

	page, err := s.AuditLog().Query(ctx, store.AuditFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, page, 3)

	next, err := s.AuditLog().Query(ctx, store.AuditFilter{Limit: 3, Offset: 3})
	require.NoError(t, err)
	require.Len(t, next, 3)
	assert.NotEqual(t, page[0].ID, next[0].ID)
}

func TestAuditAppendRequiresAction(t *testing.T) {
	s := testStore(t)
	err := s.AuditLog().Append(context.Background(), &store.AuditEntry{ID: uuid.NewString()})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}
