package convmem_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youssefsiam38/convmem"
	"github.com/youssefsiam38/convmem/compaction"
	"github.com/youssefsiam38/convmem/disambiguation"
	"github.com/youssefsiam38/convmem/generation"
	"github.com/youssefsiam38/convmem/hooks"
	"github.com/youssefsiam38/convmem/internal/testutil"
	"github.com/youssefsiam38/convmem/response"
	"github.com/youssefsiam38/convmem/storage"
	"github.com/youssefsiam38/convmem/types"
)

const (
	clearAnalysis = `{
		"original_query": "fix it",
		"is_ambiguous": false,
		"rewritten_query": "Fix the login bug",
		"possible_interpretations": [],
		"needed_context_from_memory": [],
		"clarifying_questions": [],
		"final_augmented_context": "User reported a login bug."
	}`

	crypticAnalysis = `{
		"original_query": "asdkjh random text",
		"is_ambiguous": true,
		"rewritten_query": null,
		"possible_interpretations": [],
		"needed_context_from_memory": [],
		"clarifying_questions": ["What are you trying to do?", "Is this a typo?"],
		"final_augmented_context": "No context."
	}`

	summaryJSON = `{
		"user_profile": {"preferences": ["Python"], "constraints": []},
		"key_facts": ["Login fails with quotes"],
		"decisions": [],
		"open_questions": ["Which DB driver?"],
		"todos": ["Escape the query"]
	}`
)

// routedGenerator answers each stage by its system prompt.
func routedGenerator(summary, analysis, answer string) *testutil.ScriptedGenerator {
	gen := testutil.NewScriptedGenerator()
	gen.Route = func(req *generation.Request) (testutil.Reply, bool) {
		switch req.System {
		case compaction.SummarizationSystemPrompt:
			return testutil.Reply{Text: summary}, true
		case disambiguation.AnalysisSystemPrompt:
			return testutil.Reply{Text: analysis}, true
		case response.SystemPrompt:
			return testutil.Reply{Text: answer}, true
		}
		return testutil.Reply{}, false
	}
	return gen
}

func callsFor(gen *testutil.ScriptedGenerator, system string) int {
	n := 0
	for _, req := range gen.Requests() {
		if req.System == system {
			n++
		}
	}
	return n
}

func newPipeline(t *testing.T, store storage.Store, gen generation.Generator, opts ...convmem.Option) *convmem.Pipeline {
	t.Helper()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	opts = append([]convmem.Option{convmem.WithClock(func() time.Time { return clock })}, opts...)
	p, err := convmem.New(convmem.Config{Generator: gen, Store: store}, opts...)
	require.NoError(t, err)
	return p
}

func seed(t *testing.T, store storage.Store, sessionID string, tokens ...int) {
	t.Helper()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for i, n := range tokens {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		require.NoError(t, store.AppendMessage(context.Background(), &types.Message{
			SessionID:  sessionID,
			Role:       role,
			Content:    "earlier message",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			TokenCount: n,
		}))
	}
}

func TestNew_Validation(t *testing.T) {
	store := storage.NewMemoryStore()
	gen := testutil.NewScriptedGenerator()

	_, err := convmem.New(convmem.Config{Store: store})
	assert.ErrorIs(t, err, convmem.ErrInvalidConfig)

	_, err = convmem.New(convmem.Config{Generator: gen})
	assert.ErrorIs(t, err, convmem.ErrInvalidConfig)

	_, err = convmem.New(convmem.Config{Generator: gen, Store: store}, convmem.WithTokenThreshold(0))
	assert.ErrorIs(t, err, convmem.ErrInvalidConfig)

	_, err = convmem.New(convmem.Config{Generator: gen, Store: store}, convmem.WithRecentWindow(-1))
	assert.ErrorIs(t, err, convmem.ErrInvalidConfig)

	_, err = convmem.New(convmem.Config{Generator: gen, Store: store}, convmem.WithResponseTemperature(3))
	assert.ErrorIs(t, err, convmem.ErrInvalidConfig)

	p, err := convmem.New(convmem.Config{Generator: gen, Store: store}, convmem.WithLogger(nil), convmem.WithHooks(nil))
	require.NoError(t, err)
	assert.Equal(t, convmem.DefaultTokenThreshold, p.Threshold())
}

func TestPipeline_ZeroResponseTemperature(t *testing.T) {
	store := storage.NewMemoryStore()
	gen := routedGenerator(summaryJSON, clearAnalysis, "answer")
	p := newPipeline(t, store, gen, convmem.WithResponseTemperature(0))

	_, err := p.Session("s1").Turn(context.Background(), "fix it")
	require.NoError(t, err)

	var answerReq *generation.Request
	for _, req := range gen.Requests() {
		if req.System == response.SystemPrompt {
			answerReq = req
		}
	}
	require.NotNil(t, answerReq)
	require.NotNil(t, answerReq.Temperature)
	assert.Zero(t, *answerReq.Temperature)
}

func TestSession_TurnBelowThreshold(t *testing.T) {
	store := storage.NewMemoryStore()
	gen := routedGenerator(summaryJSON, clearAnalysis, "Here is the fix.")
	p := newPipeline(t, store, gen)
	ctx := context.Background()

	result, err := p.Session("s1").Turn(ctx, "fix it")
	require.NoError(t, err)

	assert.Equal(t, "Here is the fix.", result.Response)
	assert.Equal(t, response.BranchBestEffort, result.Branch)
	assert.Nil(t, result.Compaction)
	assert.Equal(t, []convmem.Stage{
		convmem.StageCheckCompaction,
		convmem.StageDisambiguate,
		convmem.StageRespond,
		convmem.StagePersist,
	}, result.Stages)
	assert.Zero(t, callsFor(gen, compaction.SummarizationSystemPrompt))

	messages, err := store.ListMessages(ctx, "s1", storage.FilterAll)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	user, assistant := messages[0], messages[1]
	assert.Equal(t, types.RoleUser, user.Role)
	assert.Equal(t, "fix it", user.Content)
	analysis, ok := user.Metadata[types.MetadataQueryAnalysis].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "fix it", analysis["original_query"])
	assert.Equal(t, "Fix the login bug", analysis["rewritten_query"])

	assert.Equal(t, types.RoleAssistant, assistant.Role)
	assert.Equal(t, false, assistant.Metadata[types.MetadataSummaryTriggered])
	assert.NotContains(t, assistant.Metadata, types.MetadataSessionSummary)
	assert.Equal(t, "best_effort", assistant.Metadata[types.MetadataResponseBranch])

	wantUserTokens, err := compaction.MessageTokens(ctx, compaction.ApproximateTokenizer{}, types.RoleUser, "fix it")
	require.NoError(t, err)
	assert.Equal(t, wantUserTokens, user.TokenCount)
}

func TestSession_ThresholdIsStrict(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, "s1", 50, 50)
	gen := routedGenerator(summaryJSON, clearAnalysis, "ok")
	p := newPipeline(t, store, gen, convmem.WithTokenThreshold(100))

	result, err := p.Run(context.Background(), "s1", "fix it")
	require.NoError(t, err)

	assert.Equal(t, 100, result.LiveTokens)
	assert.False(t, result.Compacted())
	assert.Zero(t, callsFor(gen, compaction.SummarizationSystemPrompt))
}

func TestSession_TurnCompactsOverThreshold(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, "s1", 30, 30, 30, 30)
	gen := routedGenerator(summaryJSON, clearAnalysis, "ok")
	p := newPipeline(t, store, gen, convmem.WithTokenThreshold(100))
	ctx := context.Background()

	result, err := p.Session("s1").Turn(ctx, "fix it")
	require.NoError(t, err)

	require.NotNil(t, result.Compaction)
	assert.True(t, result.CompactionParsed)
	assert.Equal(t, 120, result.LiveTokens)
	assert.Equal(t, types.MessageRange{FromIndex: 0, ToIndex: 3}, result.Compaction.MessageRangeSummarized)
	assert.Equal(t, []string{"Login fails with quotes"}, result.Compaction.SessionSummary.KeyFacts)
	assert.Equal(t, []convmem.Stage{
		convmem.StageCheckCompaction,
		convmem.StageCompact,
		convmem.StageDisambiguate,
		convmem.StageRespond,
		convmem.StagePersist,
	}, result.Stages)

	messages, err := store.ListMessages(ctx, "s1", storage.FilterAll)
	require.NoError(t, err)
	require.Len(t, messages, 6)
	for i, msg := range messages {
		assert.Equal(t, i < 4, msg.Archived, "message %d", i)
	}

	assistant := messages[5]
	assert.Equal(t, true, assistant.Metadata[types.MetadataSummaryTriggered])
	assert.Contains(t, assistant.Metadata, types.MetadataSessionSummary)

	// The analysis saw the new summary.
	var analysisPrompt string
	for _, req := range gen.Requests() {
		if req.System == disambiguation.AnalysisSystemPrompt {
			analysisPrompt = testutil.PromptText(req)
		}
	}
	assert.Contains(t, analysisPrompt, "- Key facts: Login fails with quotes")

	// The next turn starts below the threshold again.
	next, err := p.Session("s1").Turn(ctx, "fix it")
	require.NoError(t, err)
	assert.False(t, next.Compacted())
	assert.Equal(t, 1, callsFor(gen, compaction.SummarizationSystemPrompt))
}

func TestSession_MalformedSummaryStillAnswers(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, "s1", 80, 80)
	gen := routedGenerator("this is not json", clearAnalysis, "answer")
	p := newPipeline(t, store, gen, convmem.WithTokenThreshold(100))
	ctx := context.Background()

	result, err := p.Session("s1").Turn(ctx, "fix it")
	require.NoError(t, err)

	assert.Equal(t, "answer", result.Response)
	require.NotNil(t, result.Compaction)
	assert.False(t, result.CompactionParsed)
	assert.True(t, result.Compaction.SessionSummary.IsEmpty())
	assert.NotNil(t, result.Compaction.SessionSummary.KeyFacts)

	live, err := store.ListMessages(ctx, "s1", storage.FilterUnarchived)
	require.NoError(t, err)
	assert.Len(t, live, 2, "only the new turn's messages stay live")
}

func TestSession_HardStopSkipsGeneration(t *testing.T) {
	store := storage.NewMemoryStore()
	gen := routedGenerator(summaryJSON, crypticAnalysis, "should not be used")
	p := newPipeline(t, store, gen)

	result, err := p.Session("s1").Turn(context.Background(), "asdkjh random text")
	require.NoError(t, err)

	assert.Equal(t, response.BranchHardStop, result.Branch)
	assert.Equal(t, "I need some clarification:\n\n1. What are you trying to do?\n2. Is this a typo?", result.Response)
	assert.Zero(t, callsFor(gen, response.SystemPrompt))
	require.NotNil(t, result.AssistantMessage)
	assert.Equal(t, "hard_stop", result.AssistantMessage.Metadata[types.MetadataResponseBranch])
}

func TestSession_GenerationFailureIsClassified(t *testing.T) {
	tests := []struct {
		name      string
		failOn    string
		seed      []int
		wantStage string
	}{
		{name: "summary", failOn: compaction.SummarizationSystemPrompt, seed: []int{80, 80}, wantStage: "compact"},
		{name: "analysis", failOn: disambiguation.AnalysisSystemPrompt, wantStage: "disambiguate"},
		{name: "response", failOn: response.SystemPrompt, wantStage: "respond"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			seed(t, store, "s1", tt.seed...)
			gen := routedGenerator(summaryJSON, clearAnalysis, "ok")
			route := gen.Route
			gen.Route = func(req *generation.Request) (testutil.Reply, bool) {
				if req.System == tt.failOn {
					return testutil.Reply{Err: generation.ErrGenerationFailed}, true
				}
				return route(req)
			}
			p := newPipeline(t, store, gen, convmem.WithTokenThreshold(100))
			ctx := context.Background()

			_, err := p.Session("s1").Turn(ctx, "fix it")
			require.Error(t, err)

			var pipelineErr *convmem.PipelineError
			require.True(t, errors.As(err, &pipelineErr))
			assert.Equal(t, tt.wantStage, pipelineErr.Stage)
			assert.Equal(t, "s1", pipelineErr.SessionID)
			assert.ErrorIs(t, err, convmem.ErrGeneration)
			assert.NotErrorIs(t, err, convmem.ErrStorage)
			assert.ErrorIs(t, err, generation.ErrGenerationFailed)

			count, err := store.CountMessages(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, len(tt.seed), count, "nothing persisted")

			summaries, err := store.ListSummaries(ctx, "s1")
			require.NoError(t, err)
			assert.Empty(t, summaries)
		})
	}
}

func TestPipeline_RunDoesNotPersist(t *testing.T) {
	store := storage.NewMemoryStore()
	p := newPipeline(t, store, routedGenerator(summaryJSON, clearAnalysis, "ok"))

	result, err := p.Run(context.Background(), "s1", "fix it")
	require.NoError(t, err)
	assert.Nil(t, result.UserMessage)

	count, err := store.CountMessages(context.Background(), "s1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPipeline_EmptyQuery(t *testing.T) {
	p := newPipeline(t, storage.NewMemoryStore(), testutil.NewScriptedGenerator())

	_, err := p.Session("s1").Turn(context.Background(), "   ")
	assert.ErrorIs(t, err, convmem.ErrEmptyQuery)

	_, err = p.Run(context.Background(), "", "hello")
	assert.ErrorIs(t, err, convmem.ErrInvalidConfig)
}

func TestSession_ConcurrentTurnsAreSerialized(t *testing.T) {
	store := storage.NewMemoryStore()
	p := newPipeline(t, store, routedGenerator(summaryJSON, clearAnalysis, "ok"))
	ctx := context.Background()

	const turns = 8
	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Session("s1").Turn(ctx, "fix it")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	messages, err := store.ListMessages(ctx, "s1", storage.FilterAll)
	require.NoError(t, err)
	require.Len(t, messages, 2*turns)
	for i, msg := range messages {
		want := types.RoleUser
		if i%2 == 1 {
			want = types.RoleAssistant
		}
		assert.Equal(t, want, msg.Role, "message %d", i)
	}
}

func TestSession_ConcurrentTurnsCompactOnce(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, "s1", 80, 80)
	gen := routedGenerator(summaryJSON, clearAnalysis, "ok")
	p := newPipeline(t, store, gen, convmem.WithTokenThreshold(100))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Session("s1").Turn(ctx, "hi")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, callsFor(gen, compaction.SummarizationSystemPrompt))
	summaries, err := store.ListSummaries(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestSession_BeforeCompactionHookVeto(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, "s1", 80, 80)
	registry := hooks.NewRegistry()
	veto := errors.New("compaction paused")
	registry.OnBeforeCompaction(func(ctx context.Context, sessionID string, check *compaction.Check) error {
		stageSession, stage := convmem.TurnFromContext(ctx)
		assert.Equal(t, sessionID, stageSession)
		assert.Equal(t, convmem.StageCompact, stage)
		return veto
	})

	gen := routedGenerator(summaryJSON, clearAnalysis, "ok")
	p := newPipeline(t, store, gen, convmem.WithTokenThreshold(100), convmem.WithHooks(registry))

	_, err := p.Session("s1").Turn(context.Background(), "hi")
	require.ErrorIs(t, err, veto)
	assert.Zero(t, gen.Calls())

	live, err := store.ListMessages(context.Background(), "s1", storage.FilterUnarchived)
	require.NoError(t, err)
	assert.Len(t, live, 2)
}

func TestSession_HooksObserveTurn(t *testing.T) {
	registry := hooks.NewRegistry()
	var seen []string
	registry.OnAfterAnalysis(func(ctx context.Context, sessionID string, u *types.QueryUnderstanding) error {
		seen = append(seen, "analysis:"+u.OriginalQuery)
		return nil
	})
	registry.OnAfterResponse(func(ctx context.Context, sessionID string, reply *response.Reply) error {
		seen = append(seen, "response:"+string(reply.Branch))
		return nil
	})

	p := newPipeline(t, storage.NewMemoryStore(), routedGenerator(summaryJSON, clearAnalysis, "ok"), convmem.WithHooks(registry))
	_, err := p.Session("s1").Turn(context.Background(), "fix it")
	require.NoError(t, err)

	assert.Equal(t, []string{"analysis:fix it", "response:best_effort"}, seen)
}

func TestSession_SummaryGenerator(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, "s1", 80, 80)
	primary := routedGenerator("unused", clearAnalysis, "ok")
	summarizer := testutil.NewScriptedGenerator(summaryJSON)
	p := newPipeline(t, store, primary, convmem.WithTokenThreshold(100), convmem.WithSummaryGenerator(summarizer))

	result, err := p.Session("s1").Turn(context.Background(), "hi")
	require.NoError(t, err)

	assert.True(t, result.CompactionParsed)
	assert.Equal(t, 1, summarizer.Calls())
	assert.Zero(t, callsFor(primary, compaction.SummarizationSystemPrompt))
}

func TestSession_ContextStatus(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, "s1", 30, 45)
	p := newPipeline(t, store, testutil.NewScriptedGenerator(), convmem.WithTokenThreshold(100))

	status, err := p.Session("s1").ContextStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 75, status.LiveTokens)
	assert.Equal(t, 100, status.Threshold)
	assert.InDelta(t, 75.0, status.Percent, 1e-9)
	assert.False(t, status.NeedsCompaction)
	assert.Equal(t, 2, status.LiveMessages)
	assert.Zero(t, status.SummaryCount)
}

func TestPipeline_SessionManagement(t *testing.T) {
	store := storage.NewMemoryStore()
	p := newPipeline(t, store, routedGenerator(summaryJSON, clearAnalysis, "ok"))
	ctx := context.Background()

	session := p.NewSession()
	require.NotEmpty(t, session.ID())
	_, err := session.Turn(ctx, "fix it")
	require.NoError(t, err)

	sessions, err := p.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, session.ID(), sessions[0].ID)

	stats, err := session.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.MessageCount)
	assert.Equal(t, stats.TotalTokens, stats.LiveTokens)

	require.NoError(t, session.Delete(ctx))
	sessions, err = p.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestPipelineError_StorageClassification(t *testing.T) {
	err := convmem.NewPipelineErrorWithSession(convmem.StageCompact, "s1", storage.ErrRangeConflict)
	assert.ErrorIs(t, err, convmem.ErrStorage)
	assert.NotErrorIs(t, err, convmem.ErrGeneration)
	assert.Equal(t, "compact (session=s1): "+storage.ErrRangeConflict.Error(), err.Error())

	plain := convmem.NewPipelineError("ListSessions", errors.New("boom"))
	assert.NotErrorIs(t, plain, convmem.ErrStorage)
	assert.NotErrorIs(t, plain, convmem.ErrGeneration)
}
