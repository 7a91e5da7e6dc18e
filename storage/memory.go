package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/youssefsiam38/convmem/types"
)

// MemoryStore is an in-process Store. It is safe for concurrent use and is
// intended for tests, the CLI's ephemeral mode, and single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	now      func() time.Time
}

type memorySession struct {
	messages  []*types.Message
	summaries []*types.SessionMemoryOutput
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		now:      time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

// AppendMessage implements Store.
func (s *MemoryStore) AppendMessage(ctx context.Context, msg *types.Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[msg.SessionID]
	if sess == nil {
		sess = &memorySession{}
		s.sessions[msg.SessionID] = sess
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	if n := len(sess.messages); n > 0 {
		if latest := sess.messages[n-1].Timestamp; msg.Timestamp.Before(latest) {
			msg.Timestamp = latest
		}
	}

	sess.messages = append(sess.messages, msg.Clone())
	return nil
}

// ListMessages implements Store.
func (s *MemoryStore) ListMessages(ctx context.Context, sessionID string, filter Filter) ([]*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := s.sessions[sessionID]
	if sess == nil {
		return []*types.Message{}, nil
	}

	result := make([]*types.Message, 0, len(sess.messages))
	for _, msg := range sess.messages {
		if filter == FilterUnarchived && msg.Archived {
			continue
		}
		result = append(result, msg.Clone())
	}
	return result, nil
}

// ListRecentMessages implements Store.
func (s *MemoryStore) ListRecentMessages(ctx context.Context, sessionID string, n int) ([]*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := s.sessions[sessionID]
	if sess == nil || n <= 0 {
		return []*types.Message{}, nil
	}

	start := len(sess.messages) - n
	if start < 0 {
		start = 0
	}
	result := make([]*types.Message, 0, len(sess.messages)-start)
	for _, msg := range sess.messages[start:] {
		result = append(result, msg.Clone())
	}
	return result, nil
}

// CountMessages implements Store.
func (s *MemoryStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess := s.sessions[sessionID]; sess != nil {
		return len(sess.messages), nil
	}
	return 0, nil
}

// SaveSummary implements Store. The range check, the append and the archive
// flips happen under one write lock.
func (s *MemoryStore) SaveSummary(ctx context.Context, summary *types.SessionMemoryOutput) error {
	if summary == nil || summary.SessionID == "" {
		return fmt.Errorf("%w: summary requires a session_id", ErrStorage)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[summary.SessionID]
	if err := s.checkRangeLocked(sess, summary.MessageRangeSummarized); err != nil {
		return err
	}

	if summary.ID == "" {
		summary.ID = uuid.New().String()
	}
	if summary.Timestamp.IsZero() {
		summary.Timestamp = s.now()
	}

	stored := summary.Clone()
	stored.SessionSummary.Normalize()
	sess.summaries = append(sess.summaries, stored)
	archiveLocked(sess, summary.MessageRangeSummarized)
	return nil
}

// MarkArchived implements Store.
func (s *MemoryStore) MarkArchived(ctx context.Context, sessionID string, r types.MessageRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sessionID]
	if err := s.checkRangeLocked(sess, r); err != nil {
		return err
	}
	archiveLocked(sess, r)
	return nil
}

func (s *MemoryStore) checkRangeLocked(sess *memorySession, r types.MessageRange) error {
	if sess == nil {
		return CheckRange(r, 0, nil, 0)
	}

	var previous *types.SessionMemoryOutput
	if n := len(sess.summaries); n > 0 {
		previous = sess.summaries[n-1]
	}

	archived := 0
	if r.Validate() == nil {
		for i := r.FromIndex; i <= r.ToIndex && i < len(sess.messages); i++ {
			if sess.messages[i].Archived {
				archived++
			}
		}
	}
	return CheckRange(r, len(sess.messages), previous, archived)
}

func archiveLocked(sess *memorySession, r types.MessageRange) {
	for i := r.FromIndex; i <= r.ToIndex; i++ {
		sess.messages[i].Archived = true
	}
}

// LatestSummary implements Store.
func (s *MemoryStore) LatestSummary(ctx context.Context, sessionID string) (*types.SessionMemoryOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := s.sessions[sessionID]
	if sess == nil || len(sess.summaries) == 0 {
		return nil, nil
	}
	return sess.summaries[len(sess.summaries)-1].Clone(), nil
}

// ListSummaries implements Store.
func (s *MemoryStore) ListSummaries(ctx context.Context, sessionID string) ([]*types.SessionMemoryOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := s.sessions[sessionID]
	if sess == nil {
		return []*types.SessionMemoryOutput{}, nil
	}
	result := make([]*types.SessionMemoryOutput, 0, len(sess.summaries))
	for _, summary := range sess.summaries {
		result = append(result, summary.Clone())
	}
	return result, nil
}

// DeleteSession implements Store.
func (s *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// ListSessions implements Store.
func (s *MemoryStore) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]*SessionInfo, 0, len(s.sessions))
	for id, sess := range s.sessions {
		if len(sess.messages) == 0 {
			continue
		}
		infos = append(infos, &SessionInfo{
			ID:             id,
			MessageCount:   len(sess.messages),
			FirstMessageAt: sess.messages[0].Timestamp,
			LastMessageAt:  sess.messages[len(sess.messages)-1].Timestamp,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].LastMessageAt.Equal(infos[j].LastMessageAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].LastMessageAt.After(infos[j].LastMessageAt)
	})
	return infos, nil
}

// SessionStats implements Store.
func (s *MemoryStore) SessionStats(ctx context.Context, sessionID string) (*SessionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &SessionStats{SessionID: sessionID}
	sess := s.sessions[sessionID]
	if sess == nil {
		return stats, nil
	}

	stats.MessageCount = len(sess.messages)
	stats.SummaryCount = len(sess.summaries)
	for _, msg := range sess.messages {
		stats.TotalTokens += msg.TokenCount
		if msg.Archived {
			stats.ArchivedCount++
			continue
		}
		stats.LiveTokens += msg.TokenCount
	}
	return stats, nil
}
