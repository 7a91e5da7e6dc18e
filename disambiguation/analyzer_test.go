package disambiguation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youssefsiam38/convmem/disambiguation"
	"github.com/youssefsiam38/convmem/generation"
	"github.com/youssefsiam38/convmem/internal/testutil"
	"github.com/youssefsiam38/convmem/storage"
	"github.com/youssefsiam38/convmem/types"
)

func seed(t *testing.T, store storage.Store, sessionID string, turns ...string) {
	t.Helper()
	for i, content := range turns {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		require.NoError(t, store.AppendMessage(context.Background(), &types.Message{
			SessionID:  sessionID,
			Role:       role,
			Content:    content,
			TokenCount: 10,
		}))
	}
}

func TestAnalyzer_ShortQueryResolvedFromContext(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, "s1",
		"The login page returns a 500 when the password has a quote in it",
		"That looks like an unescaped string in the auth query.",
	)

	gen := testutil.NewScriptedGenerator(`{
		"original_query": "fix it",
		"is_ambiguous": false,
		"rewritten_query": "Fix the login bug caused by unescaped quotes in the auth query",
		"possible_interpretations": [],
		"needed_context_from_memory": [],
		"clarifying_questions": [],
		"final_augmented_context": "User hit a 500 on login with quotes in the password."
	}`)

	u, err := disambiguation.New(store, gen, nil, nil).Analyze(context.Background(), "s1", "fix it")
	require.NoError(t, err)

	assert.False(t, u.IsAmbiguous)
	assert.Contains(t, u.Rewritten(), "login")
	assert.Empty(t, u.ClarifyingQuestions)
	assert.NotEmpty(t, u.FinalAugmentedContext)

	prompt := gen.LastPrompt()
	assert.Contains(t, prompt, "USER: The login page returns a 500")
	assert.Contains(t, prompt, `New user query: "fix it"`)
}

func TestAnalyzer_DecomposableAmbiguityDropsQuestions(t *testing.T) {
	store := storage.NewMemoryStore()
	gen := testutil.NewScriptedGenerator("```json\n" + `{
		"original_query": "get football data",
		"is_ambiguous": true,
		"rewritten_query": "Get football match results, league standings, or player statistics",
		"possible_interpretations": ["match results", "league standings", "player statistics"],
		"needed_context_from_memory": [],
		"clarifying_questions": ["Which league?"],
		"final_augmented_context": ""
	}` + "\n```")

	u, err := disambiguation.New(store, gen, nil, nil).Analyze(context.Background(), "s1", "get football data")
	require.NoError(t, err)

	assert.True(t, u.IsAmbiguous)
	assert.Len(t, u.PossibleInterpretations, 3)
	assert.Empty(t, u.ClarifyingQuestions)
	assert.NotEmpty(t, u.Rewritten())
	assert.Equal(t, disambiguation.NoHistoryText, u.FinalAugmentedContext)
}

func TestAnalyzer_CrypticQueryKeepsQuestions(t *testing.T) {
	store := storage.NewMemoryStore()
	gen := testutil.NewScriptedGenerator(`{
		"original_query": "asdkjh random text",
		"is_ambiguous": true,
		"rewritten_query": "",
		"possible_interpretations": [],
		"needed_context_from_memory": [],
		"clarifying_questions": ["What are you trying to do?", "Is this a typo?", "Which project?", "Anything else?"],
		"final_augmented_context": "No context."
	}`)

	u, err := disambiguation.New(store, gen, nil, nil).Analyze(context.Background(), "s1", "asdkjh random text")
	require.NoError(t, err)

	assert.True(t, u.IsAmbiguous)
	assert.Nil(t, u.RewrittenQuery)
	assert.Len(t, u.ClarifyingQuestions, disambiguation.DefaultMaxClarifying)
}

func TestAnalyzer_DelegationIsNeverAmbiguous(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, "s1",
		"Should I use Postgres or SQLite for the prototype?",
		"Both work; it depends on deployment.",
	)
	gen := testutil.NewScriptedGenerator(`{
		"original_query": "you decide",
		"is_ambiguous": true,
		"rewritten_query": null,
		"possible_interpretations": ["Use SQLite for the prototype", "Use Postgres"],
		"needed_context_from_memory": [],
		"clarifying_questions": ["Which do you prefer?"],
		"final_augmented_context": "Choosing a database for a prototype."
	}`)

	u, err := disambiguation.New(store, gen, nil, nil).Analyze(context.Background(), "s1", "You decide!")
	require.NoError(t, err)

	assert.False(t, u.IsAmbiguous)
	assert.Equal(t, []string{"Use SQLite for the prototype"}, u.PossibleInterpretations)
	assert.Empty(t, u.ClarifyingQuestions)
	assert.Equal(t, "Use SQLite for the prototype", u.Rewritten())
	assert.Equal(t, "You decide!", u.OriginalQuery)
}

func TestAnalyzer_MalformedOutputFallsBack(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, "s1", "hello", "hi there")
	gen := testutil.NewScriptedGenerator("I think the user wants something.")

	u, err := disambiguation.New(store, gen, nil, nil).Analyze(context.Background(), "s1", "do the thing")
	require.NoError(t, err)

	assert.Equal(t, "do the thing", u.OriginalQuery)
	assert.False(t, u.IsAmbiguous)
	assert.Nil(t, u.RewrittenQuery)
	assert.Empty(t, u.PossibleInterpretations)
	assert.Equal(t, "USER: hello\nASSISTANT: hi there", u.FinalAugmentedContext)
}

func TestAnalyzer_GenerationFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	gen := testutil.NewScriptedGenerator()
	gen.Push(testutil.Reply{Err: generation.ErrGenerationFailed})

	_, err := disambiguation.New(store, gen, nil, nil).Analyze(context.Background(), "s1", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, disambiguation.ErrAnalysisFailed)
	assert.ErrorIs(t, err, generation.ErrGenerationFailed)
}

func TestAnalyzer_StoreFailure(t *testing.T) {
	gen := testutil.NewScriptedGenerator("{}")
	_, err := disambiguation.New(failingStore{}, gen, nil, nil).Analyze(context.Background(), "s1", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStorage)
	assert.Zero(t, gen.Calls())
}

func TestAnalyzer_MemoryCappedInPrompt(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, "s1", "a", "b")
	summary := types.EmptySessionSummary()
	summary.UserProfile.Preferences = []string{"p1", "p2", "p3", "p4"}
	summary.KeyFacts = []string{"f1", "f2", "f3", "f4"}
	summary.Todos = []string{"t1", "t2", "t3", "t4", "t5"}
	require.NoError(t, store.SaveSummary(context.Background(), &types.SessionMemoryOutput{
		SessionID:              "s1",
		SessionSummary:         summary,
		MessageRangeSummarized: types.MessageRange{FromIndex: 0, ToIndex: 1},
	}))

	gen := testutil.NewScriptedGenerator(`{"is_ambiguous": false, "final_augmented_context": "ctx"}`)
	_, err := disambiguation.New(store, gen, nil, nil).Analyze(context.Background(), "s1", "next")
	require.NoError(t, err)

	prompt := gen.LastPrompt()
	assert.Contains(t, prompt, "- User preferences: p1, p2, p3, p4")
	assert.Contains(t, prompt, "- Key facts: f1, f2, f3\n")
	assert.NotContains(t, prompt, "f4")
	assert.Contains(t, prompt, "- Todos: t1, t2, t3")
	assert.NotContains(t, prompt, "t4")
	// Archived messages still belong to the recent window.
	assert.Contains(t, prompt, "USER: a\nASSISTANT: b")
}

func TestAnalyzer_RecentWindowSize(t *testing.T) {
	store := storage.NewMemoryStore()
	turns := make([]string, 14)
	for i := range turns {
		turns[i] = string(rune('a' + i))
	}
	seed(t, store, "s1", turns...)

	gen := testutil.NewScriptedGenerator(`{"final_augmented_context": "ctx"}`)
	_, err := disambiguation.New(store, gen, &disambiguation.Config{RecentWindow: 4}, nil).
		Analyze(context.Background(), "s1", "q")
	require.NoError(t, err)

	prompt := gen.LastPrompt()
	assert.Contains(t, prompt, "Recent conversation:\nUSER: k\nASSISTANT: l\nUSER: m\nASSISTANT: n\n")
	assert.NotContains(t, prompt, "ASSISTANT: j")
}

func TestParseUnderstanding(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		ambiguous bool
	}{
		{name: "plain object", raw: `{"original_query": "q", "is_ambiguous": true}`, ambiguous: true},
		{name: "fenced", raw: "```json\n{\"is_ambiguous\": false}\n```"},
		{name: "prose", raw: "Sure! Here you go.", wantErr: true},
		{name: "array", raw: `["a"]`, wantErr: true},
		{name: "truncated", raw: `{"is_ambiguous": tr`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := disambiguation.ParseUnderstanding(tt.raw, "q", "window")
			require.NotNil(t, u)
			if tt.wantErr {
				assert.ErrorIs(t, err, generation.ErrMalformedOutput)
				assert.Equal(t, "q", u.OriginalQuery)
				assert.Equal(t, "window", u.FinalAugmentedContext)
				assert.False(t, u.IsAmbiguous)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ambiguous, u.IsAmbiguous)
			assert.NotNil(t, u.PossibleInterpretations)
			assert.NotNil(t, u.ClarifyingQuestions)
		})
	}
}

func TestEnforce_BlankRewriteBecomesNil(t *testing.T) {
	u := &types.QueryUnderstanding{RewrittenQuery: types.StringPtr("   ")}
	disambiguation.Enforce(u, "q", "window", 3)
	assert.Nil(t, u.RewrittenQuery)
	assert.Equal(t, "q", u.OriginalQuery)
	assert.Equal(t, "window", u.FinalAugmentedContext)
}

type failingStore struct {
	storage.Store
}

func (failingStore) ListRecentMessages(ctx context.Context, sessionID string, n int) ([]*types.Message, error) {
	return nil, errors.Join(storage.ErrStorage, errors.New("connection refused"))
}
