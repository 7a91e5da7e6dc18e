// Package types holds the records shared by the compaction, disambiguation and
// response stages and by every storage adapter.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Role represents the message role
type Role string

const (
	// RoleUser represents a user message
	RoleUser Role = "user"

	// RoleAssistant represents an assistant message
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles a conversation log accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Label is the upper-case tag used when rendering transcripts ("USER", "ASSISTANT").
func (r Role) Label() string {
	return strings.ToUpper(string(r))
}

// Metadata keys written by the orchestrator when it persists a turn.
const (
	MetadataQueryAnalysis    = "query_analysis"
	MetadataSummaryTriggered = "summary_triggered"
	MetadataSessionSummary   = "session_summary"
	MetadataResponseBranch   = "response_branch"
)

// Message is one entry of a session's conversation log.
//
// TokenCount is computed once when the message is created and never
// recomputed. Archived starts false and is flipped exactly once, in the same
// transaction that stores the summary covering the message.
type Message struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	Timestamp  time.Time      `json:"timestamp"`
	TokenCount int            `json:"token_count"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Archived   bool           `json:"archived"`
}

// Validate checks the fields every store requires before appending.
func (m *Message) Validate() error {
	if m == nil {
		return fmt.Errorf("message is nil")
	}
	if m.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if !m.Role.Valid() {
		return fmt.Errorf("invalid role %q", m.Role)
	}
	if m.TokenCount < 0 {
		return fmt.Errorf("token_count must be non-negative, got %d", m.TokenCount)
	}
	return nil
}

// Clone returns a copy of the message whose metadata map can be mutated
// without affecting the original.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// SumTokens returns the total token count across messages.
func SumTokens(messages []*Message) int {
	total := 0
	for _, msg := range messages {
		total += msg.TokenCount
	}
	return total
}

// FormatTranscript renders messages as "ROLE: content" lines in order.
func FormatTranscript(messages []*Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role.Label(), msg.Content))
	}
	return strings.Join(lines, "\n")
}
