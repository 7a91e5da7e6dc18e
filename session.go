package convmem

import (
	"context"

	"github.com/youssefsiam38/convmem/storage"
	"github.com/youssefsiam38/convmem/types"
)

// Session is a handle for one conversation. It holds no conversation state
// of its own; everything lives in the store. Handles are cheap and safe for
// concurrent use: turns on the same session are serialized by the pipeline.
type Session struct {
	id       string
	pipeline *Pipeline
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Turn runs the pipeline for query and then stores the user message (with
// its query analysis) and the assistant reply. Messages of the turn are
// stored after the pipeline, so they are never compacted by their own turn.
//
// To store the turn inside a caller transaction, pass a context from WithTx.
func (s *Session) Turn(ctx context.Context, query string) (*TurnResult, error) {
	if err := validateTurn(s.id, query); err != nil {
		return nil, err
	}

	unlock, err := s.pipeline.locks.lock(ctx, s.id)
	if err != nil {
		return nil, NewPipelineErrorWithSession(StageCheckCompaction, s.id, err)
	}
	defer unlock()

	result, err := s.pipeline.run(ctx, s.id, query)
	if err != nil {
		return nil, err
	}

	result.Stages = append(result.Stages, StagePersist)
	persistCtx := withTurn(ctx, s.id, StagePersist)

	user, err := s.pipeline.newUserMessage(persistCtx, result)
	if err != nil {
		return nil, NewPipelineErrorWithSession(StagePersist, s.id, err).WithContext("role", types.RoleUser)
	}
	if err := s.pipeline.store.AppendMessage(persistCtx, user); err != nil {
		return nil, NewPipelineErrorWithSession(StagePersist, s.id, err).WithContext("role", types.RoleUser)
	}

	assistant, err := s.pipeline.newAssistantMessage(persistCtx, result)
	if err != nil {
		return nil, NewPipelineErrorWithSession(StagePersist, s.id, err).WithContext("role", types.RoleAssistant)
	}
	if err := s.pipeline.store.AppendMessage(persistCtx, assistant); err != nil {
		return nil, NewPipelineErrorWithSession(StagePersist, s.id, err).WithContext("role", types.RoleAssistant)
	}

	result.UserMessage = user
	result.AssistantMessage = assistant
	return result, nil
}

// ContextStatus reports the live tokens of the session against the threshold.
func (s *Session) ContextStatus(ctx context.Context) (*ContextStatus, error) {
	check, err := s.pipeline.compactor.Check(ctx, s.id)
	if err != nil {
		return nil, NewPipelineErrorWithSession(StageCheckCompaction, s.id, err)
	}
	summaries, err := s.pipeline.store.ListSummaries(ctx, s.id)
	if err != nil {
		return nil, NewPipelineErrorWithSession(StageCheckCompaction, s.id, err)
	}

	status := &ContextStatus{
		SessionID:       s.id,
		LiveTokens:      check.LiveTokens,
		Threshold:       check.Threshold,
		NeedsCompaction: check.NeedsCompaction,
		LiveMessages:    len(check.Eligible),
		SummaryCount:    len(summaries),
	}
	if check.Threshold > 0 {
		status.Percent = float64(check.LiveTokens) / float64(check.Threshold) * 100
	}
	return status, nil
}

// Messages returns the session's messages in order.
func (s *Session) Messages(ctx context.Context, filter storage.Filter) ([]*types.Message, error) {
	messages, err := s.pipeline.store.ListMessages(ctx, s.id, filter)
	if err != nil {
		e := NewPipelineError("Messages", err)
		e.SessionID = s.id
		return nil, e
	}
	return messages, nil
}

// Summaries returns the session's summaries, oldest first.
func (s *Session) Summaries(ctx context.Context) ([]*types.SessionMemoryOutput, error) {
	summaries, err := s.pipeline.store.ListSummaries(ctx, s.id)
	if err != nil {
		e := NewPipelineError("Summaries", err)
		e.SessionID = s.id
		return nil, e
	}
	return summaries, nil
}

// LatestSummary returns the most recent summary, or nil if the session was
// never compacted.
func (s *Session) LatestSummary(ctx context.Context) (*types.SessionMemoryOutput, error) {
	latest, err := s.pipeline.store.LatestSummary(ctx, s.id)
	if err != nil {
		e := NewPipelineError("LatestSummary", err)
		e.SessionID = s.id
		return nil, e
	}
	return latest, nil
}

// Stats returns message, summary and token counts for the session.
func (s *Session) Stats(ctx context.Context) (*storage.SessionStats, error) {
	return s.pipeline.SessionStats(ctx, s.id)
}

// Delete removes the session with all its messages and summaries.
func (s *Session) Delete(ctx context.Context) error {
	return s.pipeline.DeleteSession(ctx, s.id)
}
