package hooks

import (
	"context"

	"github.com/youssefsiam38/convmem/compaction"
	"github.com/youssefsiam38/convmem/response"
	"github.com/youssefsiam38/convmem/types"
)

// LoggingHooks provides built-in logging hooks for observability
type LoggingHooks struct {
	logger compaction.Logger
}

// NewLoggingHooks creates logging hooks with the provided logger
func NewLoggingHooks(logger compaction.Logger) *LoggingHooks {
	if logger == nil {
		logger = compaction.NoopLogger()
	}
	return &LoggingHooks{logger: logger}
}

// BeforeCompaction logs the trigger that fired
func (h *LoggingHooks) BeforeCompaction(ctx context.Context, sessionID string, check *compaction.Check) error {
	h.logger.Info("starting compaction",
		"session_id", sessionID,
		"live_tokens", check.LiveTokens,
		"threshold", check.Threshold,
		"messages", len(check.Eligible),
	)
	return nil
}

// AfterCompaction logs the stored summary range
func (h *LoggingHooks) AfterCompaction(ctx context.Context, result *compaction.Result) error {
	r := result.Output.MessageRangeSummarized
	h.logger.Info("compaction complete",
		"session_id", result.Output.SessionID,
		"from_index", r.FromIndex,
		"to_index", r.ToIndex,
		"tokens_archived", result.TokensArchived,
		"parsed", result.Parsed,
	)
	return nil
}

// AfterAnalysis logs the classification of a query
func (h *LoggingHooks) AfterAnalysis(ctx context.Context, sessionID string, understanding *types.QueryUnderstanding) error {
	h.logger.Debug("query analyzed",
		"session_id", sessionID,
		"ambiguous", understanding.IsAmbiguous,
		"rewritten", understanding.Rewritten() != "",
		"interpretations", len(understanding.PossibleInterpretations),
	)
	return nil
}

// AfterResponse logs the branch taken
func (h *LoggingHooks) AfterResponse(ctx context.Context, sessionID string, reply *response.Reply) error {
	h.logger.Info("turn answered",
		"session_id", sessionID,
		"branch", reply.Branch,
		"response_length", len(reply.Text),
	)
	return nil
}

// MetricsHooks collects metrics for monitoring
type MetricsHooks struct {
	OnMetric func(name string, value float64, tags map[string]string)
}

// NewMetricsHooks creates metrics collection hooks
func NewMetricsHooks(onMetric func(string, float64, map[string]string)) *MetricsHooks {
	return &MetricsHooks{OnMetric: onMetric}
}

// AfterCompaction records compaction metrics
func (h *MetricsHooks) AfterCompaction(ctx context.Context, result *compaction.Result) error {
	tags := map[string]string{"parsed": "true"}
	if !result.Parsed {
		tags["parsed"] = "false"
	}

	h.OnMetric("convmem.compaction.tokens_archived", float64(result.TokensArchived), tags)
	h.OnMetric("convmem.compaction.messages_archived", float64(result.MessagesArchived), tags)
	h.OnMetric("convmem.compaction.duration_ms", float64(result.Duration.Milliseconds()), tags)
	return nil
}

// AfterResponse records the branch taken
func (h *MetricsHooks) AfterResponse(ctx context.Context, sessionID string, reply *response.Reply) error {
	h.OnMetric("convmem.turn."+string(reply.Branch), 1, nil)
	return nil
}
