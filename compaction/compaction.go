package compaction

import (
	"context"
	"fmt"
	"time"

	"github.com/youssefsiam38/convmem/generation"
	"github.com/youssefsiam38/convmem/storage"
	"github.com/youssefsiam38/convmem/types"
)

// Logger interface for compaction logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a no-op implementation of Logger.
type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// NoopLogger returns a Logger that discards everything.
func NoopLogger() Logger {
	return noopLogger{}
}

// Check is the outcome of a trigger check.
type Check struct {
	// LiveTokens is the summed token count of unarchived messages.
	LiveTokens int

	// Threshold is the configured threshold.
	Threshold int

	// Eligible are the unarchived messages, in order, that a compaction
	// started from this check covers.
	Eligible []*types.Message

	// NeedsCompaction is LiveTokens > Threshold.
	NeedsCompaction bool
}

// Result contains the outcome of a compaction operation.
type Result struct {
	// Output is the persisted summary record.
	Output *types.SessionMemoryOutput

	// TokensArchived is the live token count removed by archiving.
	TokensArchived int

	// MessagesArchived is the number of messages archived.
	MessagesArchived int

	// Parsed is false when the generated summary was malformed and the
	// empty summary was stored instead.
	Parsed bool

	// Duration is how long the compaction took.
	Duration time.Duration
}

// Compactor merges a session's unarchived messages into a rolling summary
// when their token count exceeds the threshold.
//
// The Compactor is safe for concurrent use. Concurrent compactions of the
// same session are rejected by the store with storage.ErrRangeConflict.
type Compactor struct {
	store      storage.Store
	summarizer *Summarizer
	config     *Config
	logger     Logger
	now        func() time.Time
}

// New creates a new Compactor with the given configuration.
// If config is nil, default configuration is used.
func New(store storage.Store, gen generation.Generator, config *Config, logger Logger) *Compactor {
	if config == nil {
		config = DefaultConfig()
	} else {
		config.ApplyDefaults()
	}

	if logger == nil {
		logger = noopLogger{}
	}

	return &Compactor{
		store:      store,
		summarizer: NewSummarizer(gen, config, logger),
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the time source for summary timestamps.
func (c *Compactor) SetClock(now func() time.Time) {
	c.now = now
}

// Config returns the compactor configuration.
func (c *Compactor) Config() *Config {
	return c.config
}

// LiveTokens returns the summed token count of the session's unarchived
// messages. It is recomputed from the store on every call.
func (c *Compactor) LiveTokens(ctx context.Context, sessionID string) (int, error) {
	check, err := c.Check(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return check.LiveTokens, nil
}

// Check loads the unarchived messages and evaluates the trigger.
func (c *Compactor) Check(ctx context.Context, sessionID string) (*Check, error) {
	messages, err := c.store.ListMessages(ctx, sessionID, storage.FilterUnarchived)
	if err != nil {
		return nil, sessionError("live_tokens", sessionID, err)
	}

	live := types.SumTokens(messages)
	return &Check{
		LiveTokens:      live,
		Threshold:       c.config.Threshold,
		Eligible:        messages,
		NeedsCompaction: c.NeedsCompaction(live),
	}, nil
}

// NeedsCompaction reports whether liveTokens exceeds the threshold.
func (c *Compactor) NeedsCompaction(liveTokens int) bool {
	return liveTokens > c.config.Threshold
}

// Compact merges eligible (the session's unarchived messages, in order) with
// the latest summary, then stores the new summary and archives the covered
// range in one transaction.
//
// The range is computed against the full log: from = total - len(eligible),
// to = total - 1. Nothing is written when generation fails.
func (c *Compactor) Compact(ctx context.Context, sessionID string, eligible []*types.Message) (*Result, error) {
	if len(eligible) == 0 {
		return nil, sessionError("compact", sessionID, ErrNoMessagesToCompact)
	}

	start := time.Now()

	total, err := c.store.CountMessages(ctx, sessionID)
	if err != nil {
		return nil, sessionError("count_messages", sessionID, err)
	}

	r := types.MessageRange{
		FromIndex: total - len(eligible),
		ToIndex:   total - 1,
	}
	if r.FromIndex < 0 {
		return nil, NewCompactionError("compact", fmt.Errorf("%w: %d eligible messages but only %d in log",
			storage.ErrRangeConflict, len(eligible), total)).WithSession(sessionID)
	}

	latest, err := c.store.LatestSummary(ctx, sessionID)
	if err != nil {
		return nil, sessionError("latest_summary", sessionID, err)
	}

	var previous *types.SessionSummary
	if latest != nil {
		previous = &latest.SessionSummary
		c.logger.Debug("merging with previous summary",
			"session_id", sessionID,
			"previous_key_facts", len(latest.SessionSummary.KeyFacts),
		)
	}

	summary, parsed, err := c.summarizer.Summarize(ctx, previous, eligible)
	if err != nil {
		return nil, NewCompactionError("summarize", err).
			WithSession(sessionID).
			WithContext("messages", len(eligible))
	}

	output := &types.SessionMemoryOutput{
		SessionID:              sessionID,
		SessionSummary:         summary,
		MessageRangeSummarized: r,
		Timestamp:              c.now(),
	}

	if err := c.store.SaveSummary(ctx, output); err != nil {
		return nil, NewCompactionError("save_summary", err).
			WithSession(sessionID).
			WithContext("from_index", r.FromIndex).
			WithContext("to_index", r.ToIndex)
	}

	result := &Result{
		Output:           output,
		TokensArchived:   types.SumTokens(eligible),
		MessagesArchived: len(eligible),
		Parsed:           parsed,
		Duration:         time.Since(start),
	}

	c.logger.Info("session compacted",
		"session_id", sessionID,
		"from_index", r.FromIndex,
		"to_index", r.ToIndex,
		"tokens_archived", result.TokensArchived,
		"parsed", parsed,
		"duration", result.Duration,
	)

	return result, nil
}

// CompactIfNeeded checks the trigger and compacts when it fires.
// It returns a nil result when compaction was not needed.
func (c *Compactor) CompactIfNeeded(ctx context.Context, sessionID string) (*Result, error) {
	check, err := c.Check(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !check.NeedsCompaction {
		c.logger.Debug("compaction not needed",
			"session_id", sessionID,
			"live_tokens", check.LiveTokens,
			"threshold", check.Threshold,
		)
		return nil, nil
	}

	return c.Compact(ctx, sessionID, check.Eligible)
}
