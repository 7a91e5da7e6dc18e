package compaction

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInvalidConfig = errors.New("invalid compaction configuration")

	// ErrNoMessagesToCompact is returned when Compact is given no eligible
	// messages.
	ErrNoMessagesToCompact = errors.New("no messages to compact")

	// ErrSummarizationFailed wraps a generation failure while summarizing.
	// A malformed summary is not an error; it falls back to the empty summary.
	ErrSummarizationFailed = errors.New("summarization failed")
)

// CompactionError records which step of a compaction failed and for which
// session. Context carries step details such as the message range.
type CompactionError struct {
	Op        string
	SessionID string
	Err       error
	Context   map[string]any
}

// Error renders "compaction <op> failed for session <id> (k=v ...): <err>",
// with context keys sorted.
func (e *CompactionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "compaction %s failed", e.Op)
	if e.SessionID != "" {
		fmt.Fprintf(&b, " for session %s", e.SessionID)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteByte(')')
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *CompactionError) Unwrap() error {
	return e.Err
}

// NewCompactionError creates a CompactionError for op.
func NewCompactionError(op string, err error) *CompactionError {
	return &CompactionError{Op: op, Err: err}
}

// WithSession sets the session ID and returns e.
func (e *CompactionError) WithSession(sessionID string) *CompactionError {
	e.SessionID = sessionID
	return e
}

// WithContext adds a detail and returns e.
func (e *CompactionError) WithContext(key string, value any) *CompactionError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// sessionError wraps err for op on sessionID, or returns nil for a nil err.
func sessionError(op, sessionID string, err error) error {
	if err == nil {
		return nil
	}
	return NewCompactionError(op, err).WithSession(sessionID)
}
