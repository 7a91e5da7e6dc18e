package convmem

import (
	"time"

	"github.com/youssefsiam38/convmem/response"
	"github.com/youssefsiam38/convmem/types"
)

// TurnResult is the outcome of one pass through the pipeline.
type TurnResult struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`

	// Response is the reply text, returned verbatim from the generator or
	// the numbered clarification list of a hard stop.
	Response string          `json:"response"`
	Branch   response.Branch `json:"branch"`

	// Compaction is the summary stored by this turn, nil if none.
	Compaction *types.SessionMemoryOutput `json:"compaction,omitempty"`

	// CompactionParsed is false when the generated summary was malformed and
	// the empty summary was stored.
	CompactionParsed bool `json:"compaction_parsed,omitempty"`

	Understanding *types.QueryUnderstanding `json:"understanding"`

	// LiveTokens is the live token count measured by check_compaction,
	// before any compaction of this turn.
	LiveTokens int `json:"live_tokens"`

	// Stages lists the stages that ran, in order.
	Stages []Stage `json:"stages"`

	// UserMessage and AssistantMessage are set by Session.Turn once persisted.
	UserMessage      *types.Message `json:"user_message,omitempty"`
	AssistantMessage *types.Message `json:"assistant_message,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Compacted reports whether the turn stored a summary.
func (r *TurnResult) Compacted() bool {
	return r.Compaction != nil
}

// ContextStatus reports how full a session's live context is.
type ContextStatus struct {
	SessionID       string  `json:"session_id"`
	LiveTokens      int     `json:"live_tokens"`
	Threshold       int     `json:"threshold"`
	Percent         float64 `json:"percent"`
	NeedsCompaction bool    `json:"needs_compaction"`
	LiveMessages    int     `json:"live_messages"`
	SummaryCount    int     `json:"summary_count"`
}
