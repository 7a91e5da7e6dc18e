// Package storage defines the persistence contract for conversation logs and
// session memory, and ships an in-process implementation.
//
// SQL-backed implementations live under driver/ (pgx/v5 and database/sql).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/youssefsiam38/convmem/types"
)

// Sentinel errors for storage operations.
var (
	// ErrStorage indicates a backend operation failed.
	ErrStorage = errors.New("storage operation failed")

	// ErrInvalidMessage indicates a message failed validation before append.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrRangeConflict indicates a summary range is not contiguous with the
	// previous summary, exceeds the log, or covers already archived messages.
	// It is what a second concurrent compaction of the same session observes.
	ErrRangeConflict = errors.New("message range conflict")
)

// Filter selects which messages ListMessages returns.
type Filter int

const (
	// FilterAll returns every message of the session.
	FilterAll Filter = iota

	// FilterUnarchived returns only messages not yet folded into a summary.
	FilterUnarchived
)

// String returns the filter name used in APIs ("all", "unarchived").
func (f Filter) String() string {
	if f == FilterUnarchived {
		return "unarchived"
	}
	return "all"
}

// ParseFilter maps "unarchived" to FilterUnarchived and anything else to FilterAll.
func ParseFilter(s string) Filter {
	if s == "unarchived" {
		return FilterUnarchived
	}
	return FilterAll
}

// Store persists messages and summaries per session.
//
// Messages are ordered by timestamp with ties broken by insertion order; a
// message's index is its 0-based rank in that order and never changes.
// Implementations keep indices stable by never placing a new message before
// an existing one: a timestamp earlier than the session's latest is raised to it.
type Store interface {
	// AppendMessage stores a message. ID and Timestamp are assigned when empty.
	AppendMessage(ctx context.Context, msg *types.Message) error

	// ListMessages returns the session's messages in order.
	ListMessages(ctx context.Context, sessionID string, filter Filter) ([]*types.Message, error)

	// ListRecentMessages returns the last n messages in chronological order,
	// archived or not.
	ListRecentMessages(ctx context.Context, sessionID string, n int) ([]*types.Message, error)

	// CountMessages returns the total number of messages in the session.
	CountMessages(ctx context.Context, sessionID string) (int, error)

	// SaveSummary appends the summary and archives every message in its range
	// as one unit. Either both happen or neither does. The range must start
	// right after the previous summary's range (or at 0), lie within the log,
	// and cover only unarchived messages; otherwise ErrRangeConflict.
	SaveSummary(ctx context.Context, summary *types.SessionMemoryOutput) error

	// MarkArchived archives the messages in r without creating a summary,
	// under the same range checks as SaveSummary.
	MarkArchived(ctx context.Context, sessionID string, r types.MessageRange) error

	// LatestSummary returns the most recent summary, or nil if there is none.
	LatestSummary(ctx context.Context, sessionID string) (*types.SessionMemoryOutput, error)

	// ListSummaries returns every summary of the session, oldest first.
	ListSummaries(ctx context.Context, sessionID string) ([]*types.SessionMemoryOutput, error)

	// DeleteSession removes all messages and summaries of the session together.
	DeleteSession(ctx context.Context, sessionID string) error

	// ListSessions returns known sessions, most recently active first.
	ListSessions(ctx context.Context) ([]*SessionInfo, error)

	// SessionStats returns counters for a session. An unknown session yields
	// zero counters.
	SessionStats(ctx context.Context, sessionID string) (*SessionStats, error)
}

// SessionInfo describes a session in listings.
type SessionInfo struct {
	ID             string    `json:"id"`
	MessageCount   int       `json:"message_count"`
	FirstMessageAt time.Time `json:"first_message_at"`
	LastMessageAt  time.Time `json:"last_message_at"`
}

// SessionStats holds per-session counters.
type SessionStats struct {
	SessionID     string `json:"session_id"`
	MessageCount  int    `json:"message_count"`
	ArchivedCount int    `json:"archived_count"`
	SummaryCount  int    `json:"summary_count"`
	TotalTokens   int    `json:"total_tokens"`
	LiveTokens    int    `json:"live_tokens"`
}

// CheckRange validates a new summary range against the session state observed
// inside the writing transaction: total messages, the previous summary (nil if
// none) and how many messages in the range are already archived.
func CheckRange(r types.MessageRange, total int, previous *types.SessionMemoryOutput, archivedInRange int) error {
	if err := r.Validate(); err != nil {
		return errors.Join(ErrRangeConflict, err)
	}
	if r.ToIndex >= total {
		return errors.Join(ErrRangeConflict,
			errors.New("range exceeds the message log"))
	}
	expectedFrom := 0
	if previous != nil {
		expectedFrom = previous.MessageRangeSummarized.ToIndex + 1
	}
	if r.FromIndex != expectedFrom {
		return errors.Join(ErrRangeConflict,
			errors.New("range is not contiguous with the previous summary"))
	}
	if archivedInRange > 0 {
		return errors.Join(ErrRangeConflict,
			errors.New("range covers archived messages"))
	}
	return nil
}
