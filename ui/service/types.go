package service

import (
	"github.com/youssefsiam38/convmem"
	"github.com/youssefsiam38/convmem/storage"
	"github.com/youssefsiam38/convmem/types"
)

// Page bounds for list endpoints.
const (
	MinPageLimit     = 1
	MaxPageLimit     = 1000
	DefaultPageLimit = 25
)

// ValidateLimit clamps limit to [MinPageLimit, MaxPageLimit].
func ValidateLimit(limit int) int {
	return min(max(limit, MinPageLimit), MaxPageLimit)
}

func ValidateOffset(offset int) int {
	return max(offset, 0)
}

type SessionListParams struct {
	Limit  int
	Offset int
}

// SessionList is a page of sessions, most recently active first.
type SessionList struct {
	Sessions   []*storage.SessionInfo `json:"sessions"`
	TotalCount int                    `json:"total_count"`
	HasMore    bool                   `json:"has_more"`
}

// SessionDetail combines the counters, context usage and latest summary of
// a session.
type SessionDetail struct {
	Stats         *storage.SessionStats      `json:"stats"`
	Context       *convmem.ContextStatus     `json:"context"`
	LatestSummary *types.SessionMemoryOutput `json:"latest_summary,omitempty"`
}

// DashboardStats aggregates every session in the store.
type DashboardStats struct {
	TotalSessions    int `json:"total_sessions"`
	TotalMessages    int `json:"total_messages"`
	ArchivedMessages int `json:"archived_messages"`
	TotalSummaries   int `json:"total_summaries"`
	TotalTokens      int `json:"total_tokens"`
	LiveTokens       int `json:"live_tokens"`

	// SessionsOverThreshold counts sessions whose live tokens exceed the
	// threshold; their next turn compacts.
	SessionsOverThreshold int `json:"sessions_over_threshold"`
	Threshold             int `json:"threshold"`

	RecentSessions []*storage.SessionInfo `json:"recent_sessions"`
}
