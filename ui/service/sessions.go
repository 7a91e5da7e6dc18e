package service

import (
	"context"

	"github.com/youssefsiam38/convmem"
)

// ListSessions returns a page of sessions.
func (s *Service) ListSessions(ctx context.Context, params SessionListParams) (*SessionList, error) {
	if params.Limit <= 0 {
		params.Limit = DefaultPageLimit
	}
	params.Limit = ValidateLimit(params.Limit)
	params.Offset = ValidateOffset(params.Offset)

	all, err := s.pipeline.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	total := len(all)
	start := min(params.Offset, total)
	end := min(start+params.Limit, total)

	return &SessionList{
		Sessions:   all[start:end],
		TotalCount: total,
		HasMore:    end < total,
	}, nil
}

// GetSessionDetail returns the counters, context usage and latest summary of
// a session. A session without messages or summaries is ErrNotFound.
func (s *Service) GetSessionDetail(ctx context.Context, sessionID string) (*SessionDetail, error) {
	session := s.pipeline.Session(sessionID)

	stats, err := session.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if stats.MessageCount == 0 && stats.SummaryCount == 0 {
		return nil, ErrNotFound
	}

	status, err := session.ContextStatus(ctx)
	if err != nil {
		return nil, err
	}
	latest, err := session.LatestSummary(ctx)
	if err != nil {
		return nil, err
	}

	return &SessionDetail{
		Stats:         stats,
		Context:       status,
		LatestSummary: latest,
	}, nil
}

// GetContextStatus returns the live tokens of a session against the threshold.
func (s *Service) GetContextStatus(ctx context.Context, sessionID string) (*convmem.ContextStatus, error) {
	return s.pipeline.Session(sessionID).ContextStatus(ctx)
}

// Turn runs one turn for the session and stores its messages.
func (s *Service) Turn(ctx context.Context, sessionID, query string) (*convmem.TurnResult, error) {
	return s.pipeline.Session(sessionID).Turn(ctx, query)
}

// CreateSession returns the ID of a new, empty session.
func (s *Service) CreateSession() string {
	return s.pipeline.NewSession().ID()
}

// DeleteSession removes a session. Deleting an unknown session is ErrNotFound.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	stats, err := s.pipeline.SessionStats(ctx, sessionID)
	if err != nil {
		return err
	}
	if stats.MessageCount == 0 && stats.SummaryCount == 0 {
		return ErrNotFound
	}
	return s.pipeline.DeleteSession(ctx, sessionID)
}
