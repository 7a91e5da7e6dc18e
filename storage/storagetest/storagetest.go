// Package storagetest provides a conformance suite for storage.Store
// implementations.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youssefsiam38/convmem/storage"
	"github.com/youssefsiam38/convmem/types"
)

// Run exercises store against the storage.Store contract. Each subtest uses
// fresh session IDs so a shared database does not need cleaning between them.
func Run(t *testing.T, store storage.Store) {
	t.Run("AppendAndList", func(t *testing.T) { testAppendAndList(t, store) })
	t.Run("BackdatedAppend", func(t *testing.T) { testBackdatedAppend(t, store) })
	t.Run("SaveSummaryArchives", func(t *testing.T) { testSaveSummaryArchives(t, store) })
	t.Run("RangeContiguity", func(t *testing.T) { testRangeContiguity(t, store) })
	t.Run("ConcurrentCompaction", func(t *testing.T) { testConcurrentCompaction(t, store) })
	t.Run("RecentWindow", func(t *testing.T) { testRecentWindow(t, store) })
	t.Run("DeleteSession", func(t *testing.T) { testDeleteSession(t, store) })
}

func newSessionID() string {
	return "test-" + uuid.New().String()
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, store storage.Store, sessionID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		require.NoError(t, store.AppendMessage(context.Background(), &types.Message{
			SessionID:  sessionID,
			Role:       role,
			Content:    "message",
			Timestamp:  baseTime.Add(time.Duration(i) * time.Second),
			TokenCount: 10 + i,
		}))
	}
}

func summary(sessionID string, from, to int, facts ...string) *types.SessionMemoryOutput {
	s := types.EmptySessionSummary()
	s.KeyFacts = append(s.KeyFacts, facts...)
	return &types.SessionMemoryOutput{
		SessionID:              sessionID,
		SessionSummary:         s,
		MessageRangeSummarized: types.MessageRange{FromIndex: from, ToIndex: to},
	}
}

func testAppendAndList(t *testing.T, store storage.Store) {
	ctx := context.Background()
	sessionID := newSessionID()

	msg := &types.Message{
		SessionID:  sessionID,
		Role:       types.RoleUser,
		Content:    "hello",
		Timestamp:  baseTime,
		TokenCount: 7,
		Metadata:   map[string]any{"query_analysis": map[string]any{"is_ambiguous": false}},
	}
	require.NoError(t, store.AppendMessage(ctx, msg))
	assert.NotEmpty(t, msg.ID)

	msgs, err := store.ListMessages(ctx, sessionID, storage.FilterAll)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)
	assert.Equal(t, types.RoleUser, msgs[0].Role)
	assert.Equal(t, 7, msgs[0].TokenCount)
	assert.False(t, msgs[0].Archived)
	assert.Contains(t, msgs[0].Metadata, "query_analysis")

	count, err := store.CountMessages(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func testBackdatedAppend(t *testing.T, store storage.Store) {
	ctx := context.Background()
	sessionID := newSessionID()
	seed(t, store, sessionID, 2)

	require.NoError(t, store.AppendMessage(ctx, &types.Message{
		SessionID: sessionID,
		Role:      types.RoleUser,
		Content:   "backdated",
		Timestamp: baseTime.Add(-time.Hour),
	}))

	msgs, err := store.ListMessages(ctx, sessionID, storage.FilterAll)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "backdated", msgs[2].Content)
	assert.False(t, msgs[2].Timestamp.Before(msgs[1].Timestamp))
}

func testSaveSummaryArchives(t *testing.T, store storage.Store) {
	ctx := context.Background()
	sessionID := newSessionID()
	seed(t, store, sessionID, 6)

	require.NoError(t, store.SaveSummary(ctx, summary(sessionID, 0, 3, "fact")))

	live, err := store.ListMessages(ctx, sessionID, storage.FilterUnarchived)
	require.NoError(t, err)
	assert.Len(t, live, 2)

	latest, err := store.LatestSummary(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, []string{"fact"}, latest.SessionSummary.KeyFacts)
	assert.NotNil(t, latest.SessionSummary.Todos)

	stats, err := store.SessionStats(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.MessageCount)
	assert.Equal(t, 4, stats.ArchivedCount)
	assert.Equal(t, 1, stats.SummaryCount)
	assert.Equal(t, 10+11+12+13+14+15, stats.TotalTokens)
	assert.Equal(t, 14+15, stats.LiveTokens)
}

func testRangeContiguity(t *testing.T, store storage.Store) {
	ctx := context.Background()
	sessionID := newSessionID()
	seed(t, store, sessionID, 8)

	require.ErrorIs(t, store.SaveSummary(ctx, summary(sessionID, 1, 3)), storage.ErrRangeConflict)
	require.NoError(t, store.SaveSummary(ctx, summary(sessionID, 0, 3)))
	require.ErrorIs(t, store.SaveSummary(ctx, summary(sessionID, 3, 5)), storage.ErrRangeConflict)
	require.ErrorIs(t, store.SaveSummary(ctx, summary(sessionID, 5, 7)), storage.ErrRangeConflict)
	require.ErrorIs(t, store.SaveSummary(ctx, summary(sessionID, 4, 8)), storage.ErrRangeConflict)
	require.NoError(t, store.SaveSummary(ctx, summary(sessionID, 4, 7)))

	summaries, err := store.ListSummaries(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	for i := 1; i < len(summaries); i++ {
		assert.Equal(t,
			summaries[i-1].MessageRangeSummarized.ToIndex+1,
			summaries[i].MessageRangeSummarized.FromIndex)
	}

	live, err := store.ListMessages(ctx, sessionID, storage.FilterUnarchived)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func testConcurrentCompaction(t *testing.T, store storage.Store) {
	ctx := context.Background()
	sessionID := newSessionID()
	seed(t, store, sessionID, 4)

	const writers = 4
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.SaveSummary(ctx, summary(sessionID, 0, 3))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, storage.ErrRangeConflict)
	}
	assert.Equal(t, 1, succeeded)

	summaries, err := store.ListSummaries(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func testRecentWindow(t *testing.T, store storage.Store) {
	ctx := context.Background()
	sessionID := newSessionID()
	seed(t, store, sessionID, 5)
	require.NoError(t, store.SaveSummary(ctx, summary(sessionID, 0, 2)))

	recent, err := store.ListRecentMessages(ctx, sessionID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, 12, recent[0].TokenCount)
	assert.True(t, recent[0].Archived)
	assert.Equal(t, 14, recent[2].TokenCount)
}

func testDeleteSession(t *testing.T, store storage.Store) {
	ctx := context.Background()
	sessionID := newSessionID()
	seed(t, store, sessionID, 2)
	require.NoError(t, store.SaveSummary(ctx, summary(sessionID, 0, 1)))

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	found := false
	for _, info := range sessions {
		if info.ID == sessionID {
			found = true
			assert.Equal(t, 2, info.MessageCount)
		}
	}
	assert.True(t, found)

	require.NoError(t, store.DeleteSession(ctx, sessionID))

	msgs, err := store.ListMessages(ctx, sessionID, storage.FilterAll)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	latest, err := store.LatestSummary(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, latest)
}
