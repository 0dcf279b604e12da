// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package sqlite_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastion-dev/bastion/internal/store"
)

func TestHistoryAppendAssignsSequence(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	scope := store.StreamScope("ops-room", "deploys")

	for i := 1; i <= 3; i++ {
		rec := &store.HistoryRecord{Role: store.MessageRoleUser, Content: fmt.Sprintf("msg %d", i)}
		require.NoError(t, s.History().Append(ctx, scope, rec))
		assert.Equal(t, int64(i), rec.Seq)
	}
}

func TestHistoryReadReturnsChronologicalOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	scope := store.PrivateScope("admin@example.com")

	for i := 1; i <= 5; i++ {
		rec := &store.HistoryRecord{Role: store.MessageRoleUser, Content: fmt.Sprintf("msg %d", i)}
		require.NoError(t, s.History().Append(ctx, scope, rec))
	}

	records, err := s.History().Read(ctx, scope, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Most recent 3, oldest first.
	assert.Equal(t, "msg 3", records[0].Content)
	assert.Equal(t, "msg 4", records[1].Content)
	assert.Equal(t, "msg 5", records[2].Content)
	assert.Equal(t, int64(3), records[0].Seq)
	assert.Equal(t, int64(5), records[2].Seq)
}

func TestHistoryLookbackEdgeCases(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	scope := store.StreamScope("general", "chat")

	// Zero lookback on an empty scope returns an empty slice, not an error.
	records, err := s.History().Read(ctx, scope, 0)
	require.NoError(t, err)
	assert.Empty(t, records)

	for i := 1; i <= 5; i++ {
		rec := &store.HistoryRecord{Role: store.MessageRoleAssistant, Content: fmt.Sprintf("msg %d", i)}
		require.NoError(t, s.History().Append(ctx, scope, rec))
	}

	// Lookback far beyond the stored length returns everything, oldest first.
	records, err = s.History().Read(ctx, scope, 1000)
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "msg 1", records[0].Content)
	assert.Equal(t, "msg 5", records[4].Content)

	// Zero lookback with stored records still returns empty.
	records, err = s.History().Read(ctx, scope, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHistoryConcurrentAppendsAreGapFree(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	scope := store.StreamScope("busy", "topic")

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := &store.HistoryRecord{Role: store.MessageRoleUser, Content: fmt.Sprintf("writer %d", i)}
			errs <- s.History().Append(ctx, scope, rec)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	records, err := s.History().Read(ctx, scope, writers)
	require.NoError(t, err)
	require.Len(t, records, writers)
	for i, rec := range records {
		assert.Equal(t, int64(i+1), rec.Seq, "sequence must be gap-free and strictly increasing")
	}
}

func TestHistoryScopesAreDisjoint(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	streamScope := store.StreamScope("ops", "alerts")
	privateScope := store.PrivateScope("ops")

	require.NoError(t, s.History().Append(ctx, streamScope,
		&store.HistoryRecord{Role: store.MessageRoleUser, Content: "stream side"}))
	require.NoError(t, s.History().Append(ctx, privateScope,
		&store.HistoryRecord{Role: store.MessageRoleUser, Content: "private side"}))

	streamRecs, err := s.History().Read(ctx, streamScope, 10)
	require.NoError(t, err)
	require.Len(t, streamRecs, 1)
	assert.Equal(t, "stream side", streamRecs[0].Content)

	privateRecs, err := s.History().Read(ctx, privateScope, 10)
	require.NoError(t, err)
	require.Len(t, privateRecs, 1)
	assert.Equal(t, "private side", privateRecs[0].Content)
}

func TestHistoryTopicPartitionsStream(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := store.StreamScope("ops-room", "deploys")
	b := store.StreamScope("ops-room", "incidents")

	require.NoError(t, s.History().Append(ctx, a,
		&store.HistoryRecord{Role: store.MessageRoleUser, Content: "deploy talk"}))

	records, err := s.History().Read(ctx, b, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHistoryStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	scope := store.StreamScope("ops", "stats")

	stats, err := s.History().Stats(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Records)
	assert.Equal(t, int64(0), stats.LatestSeq)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.History().Append(ctx, scope,
			&store.HistoryRecord{Role: store.MessageRoleTool, Content: "result"}))
	}

	stats, err = s.History().Stats(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Records)
	assert.Equal(t, int64(4), stats.LatestSeq)
}

func TestHistoryClearPurgesSingleScope(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	target := store.StreamScope("ops", "clear-me")
	other := store.StreamScope("ops", "keep-me")

	require.NoError(t, s.History().Append(ctx, target,
		&store.HistoryRecord{Role: store.MessageRoleUser, Content: "gone"}))
	require.NoError(t, s.History().Append(ctx, other,
		&store.HistoryRecord{Role: store.MessageRoleUser, Content: "kept"}))

	require.NoError(t, s.History().Clear(ctx, target))

	cleared, err := s.History().Read(ctx, target, 10)
	require.NoError(t, err)
	assert.Empty(t, cleared)

	kept, err := s.History().Read(ctx, other, 10)
	require.NoError(t, err)
	require.Len(t, kept, 1)
}

func TestHistoryAppendRejectsInvalidInput(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	err := s.History().Append(ctx, store.Scope{Kind: store.ScopeKindStream},
		&store.HistoryRecord{Role: store.MessageRoleUser, Content: "x"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	err = s.History().Append(ctx, store.StreamScope("ops", "t"), &store.HistoryRecord{Content: "no role"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestHistorySurvivesReopen(t *testing.T) {
	dir := testDir(t)
	ctx := context.Background()
	scope := store.PrivateScope("user@example.com")

	openAt := func() *store.HistoryRecord {
		return &store.HistoryRecord{Role: store.MessageRoleUser, Content: "persisted"}
	}

	s1 := testStoreAt(t, dir)
	require.NoError(t, s1.History().Append(ctx, scope, openAt()))
	require.NoError(t, s1.Close())

	s2 := testStoreAt(t, dir)
	defer s2.Close()

	records, err := s2.History().Read(ctx, scope, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "persisted", records[0].Content)

	// Sequence numbering continues across restarts.
	rec := openAt()
	require.NoError(t, s2.History().Append(ctx, scope, rec))
	assert.Equal(t, int64(2), rec.Seq)
}
