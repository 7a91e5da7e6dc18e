package convmem

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/youssefsiam38/convmem/compaction"
	"github.com/youssefsiam38/convmem/disambiguation"
	"github.com/youssefsiam38/convmem/hooks"
	"github.com/youssefsiam38/convmem/response"
	"github.com/youssefsiam38/convmem/storage"
)

// Pipeline runs turns: check_compaction, compact when over the threshold,
// disambiguate, respond. Turns of one session are serialized; turns of
// different sessions run in parallel.
type Pipeline struct {
	config    *internalConfig
	store     storage.Store
	compactor *compaction.Compactor
	analyzer  *disambiguation.Analyzer
	policy    *response.Policy
	locks     *sessionLocks
}

// New creates a pipeline with the given configuration and options.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	config := newInternalConfig(cfg)
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}
	if config.logger == nil {
		config.logger = compaction.NoopLogger()
	}
	if config.tokenizer == nil {
		config.tokenizer = compaction.ApproximateTokenizer{}
	}
	if config.hooks == nil {
		config.hooks = hooks.NewRegistry()
	}
	if config.now == nil {
		config.now = time.Now
	}
	if config.summaryGenerator == nil {
		config.summaryGenerator = config.generator
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	compactor := compaction.New(config.store, config.summaryGenerator, config.compaction, config.logger)
	compactor.SetClock(config.now)

	return &Pipeline{
		config:    config,
		store:     config.store,
		compactor: compactor,
		analyzer:  disambiguation.New(config.store, config.generator, config.disambiguation, config.logger),
		policy:    response.New(config.generator, config.response, config.logger),
		locks:     newSessionLocks(),
	}, nil
}

// Store returns the underlying store.
func (p *Pipeline) Store() storage.Store {
	return p.store
}

// Hooks returns the hook registry.
func (p *Pipeline) Hooks() *hooks.Registry {
	return p.config.hooks
}

// Threshold returns the compaction threshold.
func (p *Pipeline) Threshold() int {
	return p.config.compaction.Threshold
}

// Session returns a handle for sessionID. Sessions exist once a message is
// stored, so no store call is made.
func (p *Pipeline) Session(sessionID string) *Session {
	return &Session{id: sessionID, pipeline: p}
}

// NewSession returns a handle for a fresh session with a generated ID.
func (p *Pipeline) NewSession() *Session {
	return p.Session(uuid.NewString())
}

// Run executes the pipeline for query without persisting the turn's own
// messages. Most callers want Session.Turn.
func (p *Pipeline) Run(ctx context.Context, sessionID, query string) (*TurnResult, error) {
	if err := validateTurn(sessionID, query); err != nil {
		return nil, err
	}

	unlock, err := p.locks.lock(ctx, sessionID)
	if err != nil {
		return nil, NewPipelineErrorWithSession(StageCheckCompaction, sessionID, err)
	}
	defer unlock()

	return p.run(ctx, sessionID, query)
}

func validateTurn(sessionID, query string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session ID is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}
	return nil
}

// run executes the stages in order. The caller holds the session lock.
func (p *Pipeline) run(ctx context.Context, sessionID, query string) (*TurnResult, error) {
	start := time.Now()
	result := &TurnResult{SessionID: sessionID, Query: query}

	// check_compaction
	result.Stages = append(result.Stages, StageCheckCompaction)
	stageCtx := withTurn(ctx, sessionID, StageCheckCompaction)
	check, err := p.compactor.Check(stageCtx, sessionID)
	if err != nil {
		return nil, NewPipelineErrorWithSession(StageCheckCompaction, sessionID, err)
	}
	result.LiveTokens = check.LiveTokens

	// compact
	if check.NeedsCompaction {
		result.Stages = append(result.Stages, StageCompact)
		if err := p.compact(withTurn(ctx, sessionID, StageCompact), result, check); err != nil {
			return nil, err
		}
	}

	// disambiguate
	result.Stages = append(result.Stages, StageDisambiguate)
	stageCtx = withTurn(ctx, sessionID, StageDisambiguate)
	understanding, err := p.analyzer.Analyze(stageCtx, sessionID, query)
	if err != nil {
		return nil, NewPipelineErrorWithSession(StageDisambiguate, sessionID, err)
	}
	if err := p.config.hooks.TriggerAfterAnalysis(stageCtx, sessionID, understanding); err != nil {
		return nil, NewPipelineErrorWithSession(StageDisambiguate, sessionID, err).WithContext("hook", "after_analysis")
	}
	result.Understanding = understanding

	// respond
	result.Stages = append(result.Stages, StageRespond)
	stageCtx = withTurn(ctx, sessionID, StageRespond)
	reply, err := p.policy.Respond(stageCtx, understanding)
	if err != nil {
		return nil, NewPipelineErrorWithSession(StageRespond, sessionID, err)
	}
	if err := p.config.hooks.TriggerAfterResponse(stageCtx, sessionID, reply); err != nil {
		return nil, NewPipelineErrorWithSession(StageRespond, sessionID, err).WithContext("hook", "after_response")
	}
	result.Response = reply.Text
	result.Branch = reply.Branch
	result.Duration = time.Since(start)

	p.config.logger.Debug("turn completed",
		"session_id", sessionID,
		"branch", result.Branch,
		"compacted", result.Compacted(),
		"live_tokens", result.LiveTokens,
		"duration", result.Duration,
	)

	return result, nil
}

func (p *Pipeline) compact(ctx context.Context, result *TurnResult, check *compaction.Check) error {
	sessionID := result.SessionID

	if err := p.config.hooks.TriggerBeforeCompaction(ctx, sessionID, check); err != nil {
		return NewPipelineErrorWithSession(StageCompact, sessionID, err).WithContext("hook", "before_compaction")
	}

	compacted, err := p.compactor.Compact(ctx, sessionID, check.Eligible)
	if err != nil {
		return NewPipelineErrorWithSession(StageCompact, sessionID, err).
			WithContext("live_tokens", check.LiveTokens)
	}
	result.Compaction = compacted.Output
	result.CompactionParsed = compacted.Parsed

	if err := p.config.hooks.TriggerAfterCompaction(ctx, compacted); err != nil {
		return NewPipelineErrorWithSession(StageCompact, sessionID, err).WithContext("hook", "after_compaction")
	}
	return nil
}

// ListSessions returns known sessions, most recently active first.
func (p *Pipeline) ListSessions(ctx context.Context) ([]*storage.SessionInfo, error) {
	sessions, err := p.store.ListSessions(ctx)
	if err != nil {
		return nil, NewPipelineError("ListSessions", err)
	}
	return sessions, nil
}

// SessionStats returns message, summary and token counts for a session.
func (p *Pipeline) SessionStats(ctx context.Context, sessionID string) (*storage.SessionStats, error) {
	stats, err := p.store.SessionStats(ctx, sessionID)
	if err != nil {
		return nil, NewPipelineError("SessionStats", err)
	}
	return stats, nil
}

// DeleteSession removes a session with all its messages and summaries.
// It waits for a running turn of the session to finish.
func (p *Pipeline) DeleteSession(ctx context.Context, sessionID string) error {
	unlock, err := p.locks.lock(ctx, sessionID)
	if err != nil {
		return NewPipelineError("DeleteSession", err)
	}
	defer unlock()

	if err := p.store.DeleteSession(ctx, sessionID); err != nil {
		e := NewPipelineError("DeleteSession", err)
		e.SessionID = sessionID
		return e
	}
	p.config.logger.Info("session deleted", "session_id", sessionID)
	return nil
}
