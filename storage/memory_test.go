package storage_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youssefsiam38/convmem/storage"
	"github.com/youssefsiam38/convmem/storage/storagetest"
	"github.com/youssefsiam38/convmem/types"
)

func appendN(t *testing.T, s *storage.MemoryStore, sessionID string, n int) {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		require.NoError(t, s.AppendMessage(context.Background(), &types.Message{
			SessionID:  sessionID,
			Role:       role,
			Content:    "message",
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			TokenCount: 10,
		}))
	}
}

func summaryFor(sessionID string, from, to int) *types.SessionMemoryOutput {
	return &types.SessionMemoryOutput{
		SessionID:              sessionID,
		SessionSummary:         types.EmptySessionSummary(),
		MessageRangeSummarized: types.MessageRange{FromIndex: from, ToIndex: to},
	}
}

func TestMemoryStore_AppendAssignsIDAndTimestamp(t *testing.T) {
	s := storage.NewMemoryStore()
	msg := &types.Message{SessionID: "s1", Role: types.RoleUser, Content: "hi"}

	require.NoError(t, s.AppendMessage(context.Background(), msg))

	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestMemoryStore_AppendRejectsInvalid(t *testing.T) {
	s := storage.NewMemoryStore()

	tests := []struct {
		name string
		msg  *types.Message
	}{
		{"missing session", &types.Message{Role: types.RoleUser}},
		{"bad role", &types.Message{SessionID: "s", Role: "system"}},
		{"negative tokens", &types.Message{SessionID: "s", Role: types.RoleUser, TokenCount: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.AppendMessage(context.Background(), tt.msg)
			assert.ErrorIs(t, err, storage.ErrInvalidMessage)
		})
	}
}

func TestMemoryStore_EarlierTimestampKeepsIndicesStable(t *testing.T) {
	s := storage.NewMemoryStore()
	ctx := context.Background()
	appendN(t, s, "s1", 2)

	late := &types.Message{
		SessionID: "s1",
		Role:      types.RoleUser,
		Content:   "backdated",
		Timestamp: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.AppendMessage(ctx, late))

	msgs, err := s.ListMessages(ctx, "s1", storage.FilterAll)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "backdated", msgs[2].Content)
	assert.Equal(t, msgs[1].Timestamp, msgs[2].Timestamp)
}

func TestMemoryStore_SaveSummaryArchivesRange(t *testing.T) {
	s := storage.NewMemoryStore()
	ctx := context.Background()
	appendN(t, s, "s1", 6)

	require.NoError(t, s.SaveSummary(ctx, summaryFor("s1", 0, 3)))

	live, err := s.ListMessages(ctx, "s1", storage.FilterUnarchived)
	require.NoError(t, err)
	assert.Len(t, live, 2)

	latest, err := s.LatestSummary(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.NotEmpty(t, latest.ID)
	assert.Equal(t, 3, latest.MessageRangeSummarized.ToIndex)

	stats, err := s.SessionStats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 6, stats.MessageCount)
	assert.Equal(t, 4, stats.ArchivedCount)
	assert.Equal(t, 1, stats.SummaryCount)
	assert.Equal(t, 60, stats.TotalTokens)
	assert.Equal(t, 20, stats.LiveTokens)
}

func TestMemoryStore_SaveSummaryRangeChecks(t *testing.T) {
	tests := []struct {
		name  string
		prior *types.MessageRange
		from  int
		to    int
	}{
		{name: "first summary must start at zero", from: 1, to: 3},
		{name: "beyond log", from: 0, to: 10},
		{name: "inverted", from: 3, to: 1},
		{name: "gap after previous", prior: &types.MessageRange{FromIndex: 0, ToIndex: 1}, from: 3, to: 4},
		{name: "overlaps previous", prior: &types.MessageRange{FromIndex: 0, ToIndex: 2}, from: 2, to: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := storage.NewMemoryStore()
			ctx := context.Background()
			appendN(t, s, "s1", 6)
			if tt.prior != nil {
				require.NoError(t, s.SaveSummary(ctx, summaryFor("s1", tt.prior.FromIndex, tt.prior.ToIndex)))
			}

			err := s.SaveSummary(ctx, summaryFor("s1", tt.from, tt.to))
			require.ErrorIs(t, err, storage.ErrRangeConflict)

			summaries, err := s.ListSummaries(ctx, "s1")
			require.NoError(t, err)
			if tt.prior == nil {
				assert.Empty(t, summaries)
			} else {
				assert.Len(t, summaries, 1)
			}
		})
	}
}

func TestMemoryStore_MarkArchivedRejectsArchived(t *testing.T) {
	s := storage.NewMemoryStore()
	ctx := context.Background()
	appendN(t, s, "s1", 4)

	require.NoError(t, s.MarkArchived(ctx, "s1", types.MessageRange{FromIndex: 0, ToIndex: 1}))

	// No summary recorded the first range, so contiguity expects 0 again and
	// the archived messages are rejected.
	err := s.MarkArchived(ctx, "s1", types.MessageRange{FromIndex: 0, ToIndex: 3})
	assert.ErrorIs(t, err, storage.ErrRangeConflict)
}

func TestMemoryStore_ConcurrentSaveSummaryOneWins(t *testing.T) {
	s := storage.NewMemoryStore()
	ctx := context.Background()
	appendN(t, s, "s1", 8)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.SaveSummary(ctx, summaryFor("s1", 0, 7))
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
}

func TestMemoryStore_ListRecentMessages(t *testing.T) {
	s := storage.NewMemoryStore()
	ctx := context.Background()
	appendN(t, s, "s1", 5)
	require.NoError(t, s.SaveSummary(ctx, summaryFor("s1", 0, 2)))

	recent, err := s.ListRecentMessages(ctx, "s1", 4)
	require.NoError(t, err)
	require.Len(t, recent, 4)
	assert.True(t, recent[0].Archived, "recent window includes archived messages")
	assert.False(t, recent[3].Archived)

	all, err := s.ListRecentMessages(ctx, "s1", 50)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := s.ListRecentMessages(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := storage.NewMemoryStore()
	ctx := context.Background()
	appendN(t, s, "s1", 1)

	msgs, err := s.ListMessages(ctx, "s1", storage.FilterAll)
	require.NoError(t, err)
	msgs[0].Archived = true

	live, err := s.ListMessages(ctx, "s1", storage.FilterUnarchived)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestMemoryStore_SummariesAreImmutable(t *testing.T) {
	s := storage.NewMemoryStore()
	ctx := context.Background()
	appendN(t, s, "s1", 4)

	saved := summaryFor("s1", 0, 1)
	saved.SessionSummary.KeyFacts = []string{"uses postgres"}
	require.NoError(t, s.SaveSummary(ctx, saved))
	saved.SessionSummary.KeyFacts[0] = "changed by caller"

	latest, err := s.LatestSummary(ctx, "s1")
	require.NoError(t, err)
	latest.SessionSummary.KeyFacts[0] = "changed by reader"

	all, err := s.ListSummaries(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	all[0].SessionSummary.KeyFacts[0] = "changed by lister"

	again, err := s.LatestSummary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"uses postgres"}, again.SessionSummary.KeyFacts)
}

func TestMemoryStore_SessionsAndDelete(t *testing.T) {
	s := storage.NewMemoryStore()
	ctx := context.Background()
	appendN(t, s, "older", 2)

	require.NoError(t, s.AppendMessage(ctx, &types.Message{
		SessionID: "newer",
		Role:      types.RoleUser,
		Content:   "hi",
		Timestamp: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
	}))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "newer", sessions[0].ID)
	assert.Equal(t, 2, sessions[1].MessageCount)

	require.NoError(t, s.SaveSummary(ctx, summaryFor("older", 0, 1)))
	require.NoError(t, s.DeleteSession(ctx, "older"))

	count, err := s.CountMessages(ctx, "older")
	require.NoError(t, err)
	assert.Zero(t, count)

	latest, err := s.LatestSummary(ctx, "older")
	require.NoError(t, err)
	assert.Nil(t, latest)

	stats, err := s.SessionStats(ctx, "older")
	require.NoError(t, err)
	assert.Zero(t, stats.MessageCount)
}

func TestParseFilter(t *testing.T) {
	assert.Equal(t, storage.FilterUnarchived, storage.ParseFilter("unarchived"))
	assert.Equal(t, storage.FilterAll, storage.ParseFilter("all"))
	assert.Equal(t, storage.FilterAll, storage.ParseFilter(""))
	assert.Equal(t, "unarchived", storage.FilterUnarchived.String())
}

func TestMemoryStore_Conformance(t *testing.T) {
	storagetest.Run(t, storage.NewMemoryStore())
}
