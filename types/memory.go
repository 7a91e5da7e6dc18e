package types

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// UserProfile captures what the session has learned about the user.
// Items are not deduplicated; a later summary may repeat or drop them.
type UserProfile struct {
	Preferences []string `json:"preferences"`
	Constraints []string `json:"constraints"`
}

// SessionSummary is the latest rolling state of a session's memory. Each new
// summary supersedes the previous one.
type SessionSummary struct {
	UserProfile   UserProfile `json:"user_profile"`
	KeyFacts      []string    `json:"key_facts"`
	Decisions     []string    `json:"decisions"`
	OpenQuestions []string    `json:"open_questions"`
	Todos         []string    `json:"todos"`
}

// EmptySessionSummary returns a summary with every list present and empty.
func EmptySessionSummary() SessionSummary {
	return SessionSummary{
		UserProfile: UserProfile{
			Preferences: []string{},
			Constraints: []string{},
		},
		KeyFacts:      []string{},
		Decisions:     []string{},
		OpenQuestions: []string{},
		Todos:         []string{},
	}
}

// Normalize replaces nil lists with empty ones so the summary always
// serializes with every field present.
func (s *SessionSummary) Normalize() {
	s.UserProfile.Preferences = nonNil(s.UserProfile.Preferences)
	s.UserProfile.Constraints = nonNil(s.UserProfile.Constraints)
	s.KeyFacts = nonNil(s.KeyFacts)
	s.Decisions = nonNil(s.Decisions)
	s.OpenQuestions = nonNil(s.OpenQuestions)
	s.Todos = nonNil(s.Todos)
}

// IsEmpty reports whether every list of the summary is empty.
func (s SessionSummary) IsEmpty() bool {
	return len(s.UserProfile.Preferences) == 0 &&
		len(s.UserProfile.Constraints) == 0 &&
		len(s.KeyFacts) == 0 &&
		len(s.Decisions) == 0 &&
		len(s.OpenQuestions) == 0 &&
		len(s.Todos) == 0
}

// MessageRange is an inclusive range of message indices within a session.
type MessageRange struct {
	FromIndex int `json:"from_index"`
	ToIndex   int `json:"to_index"`
}

// Validate checks 0 <= FromIndex <= ToIndex.
func (r MessageRange) Validate() error {
	if r.FromIndex < 0 {
		return fmt.Errorf("from_index must be non-negative, got %d", r.FromIndex)
	}
	if r.ToIndex < r.FromIndex {
		return fmt.Errorf("to_index (%d) must not be less than from_index (%d)", r.ToIndex, r.FromIndex)
	}
	return nil
}

// Len is the number of messages covered.
func (r MessageRange) Len() int {
	return r.ToIndex - r.FromIndex + 1
}

// SessionMemoryOutput is one compaction record. It is never mutated after
// creation; a later compaction always creates a new record.
type SessionMemoryOutput struct {
	ID                     string         `json:"id,omitempty"`
	SessionID              string         `json:"session_id,omitempty"`
	SessionSummary         SessionSummary `json:"session_summary"`
	MessageRangeSummarized MessageRange   `json:"message_range_summarized"`
	Timestamp              time.Time      `json:"timestamp"`
}

// Clone returns a copy of the summary whose lists share no backing arrays
// with s.
func (s SessionSummary) Clone() SessionSummary {
	return SessionSummary{
		UserProfile: UserProfile{
			Preferences: slices.Clone(s.UserProfile.Preferences),
			Constraints: slices.Clone(s.UserProfile.Constraints),
		},
		KeyFacts:      slices.Clone(s.KeyFacts),
		Decisions:     slices.Clone(s.Decisions),
		OpenQuestions: slices.Clone(s.OpenQuestions),
		Todos:         slices.Clone(s.Todos),
	}
}

// Clone returns a deep copy of the record.
func (o *SessionMemoryOutput) Clone() *SessionMemoryOutput {
	if o == nil {
		return nil
	}
	cp := *o
	cp.SessionSummary = o.SessionSummary.Clone()
	return &cp
}

// Render formats the summary as the labelled block used in prompts.
// maxItems caps facts, decisions, open questions and todos; zero means no cap.
func (s SessionSummary) Render(maxItems int) string {
	var b strings.Builder
	b.WriteString("User Profile:\n")
	fmt.Fprintf(&b, "- Preferences: %s\n", joinOrNone(s.UserProfile.Preferences, 0))
	fmt.Fprintf(&b, "- Constraints: %s\n", joinOrNone(s.UserProfile.Constraints, 0))
	fmt.Fprintf(&b, "Key Facts: %s\n", joinOrNone(s.KeyFacts, maxItems))
	fmt.Fprintf(&b, "Decisions: %s\n", joinOrNone(s.Decisions, maxItems))
	fmt.Fprintf(&b, "Open Questions: %s\n", joinOrNone(s.OpenQuestions, maxItems))
	fmt.Fprintf(&b, "Todos: %s", joinOrNone(s.Todos, maxItems))
	return b.String()
}

func joinOrNone(items []string, max int) string {
	if len(items) == 0 {
		return "None"
	}
	if max > 0 && len(items) > max {
		items = items[:max]
	}
	return strings.Join(items, ", ")
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
