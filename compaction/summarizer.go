package compaction

import (
	"context"
	"fmt"

	"github.com/youssefsiam38/convmem/generation"
	"github.com/youssefsiam38/convmem/types"
)

// ParseSummary decodes a generated summary. On any failure it returns the
// empty summary together with an error wrapping generation.ErrMalformedOutput,
// so callers can log the failure and continue with the fallback.
func ParseSummary(raw string) (types.SessionSummary, error) {
	var summary types.SessionSummary
	if err := generation.DecodeObject(raw, &summary); err != nil {
		return types.EmptySessionSummary(), err
	}
	summary.Normalize()
	return summary, nil
}

// Summarizer produces rolling session summaries with a generator.
type Summarizer struct {
	generator generation.Generator
	config    *Config
	logger    Logger
}

// NewSummarizer creates a new Summarizer.
func NewSummarizer(gen generation.Generator, config *Config, logger Logger) *Summarizer {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Summarizer{
		generator: gen,
		config:    config,
		logger:    logger,
	}
}

// Summarize merges messages into previous (nil for a fresh summary).
// A generation failure returns ErrSummarizationFailed. A malformed reply is
// not an error: the empty summary is returned with parsed=false.
func (s *Summarizer) Summarize(ctx context.Context, previous *types.SessionSummary, messages []*types.Message) (summary types.SessionSummary, parsed bool, err error) {
	if len(messages) == 0 {
		return types.EmptySessionSummary(), false, ErrNoMessagesToCompact
	}

	req := &generation.Request{
		System: SummarizationSystemPrompt,
		Messages: []generation.Block{
			generation.User(BuildSummarizationUserPrompt(previous, types.FormatTranscript(messages))),
		},
		Temperature: generation.Float(s.config.Temperature),
		MaxTokens:   s.config.SummarizerMaxTokens,
	}

	raw, err := s.generator.Generate(ctx, req)
	if err != nil {
		return types.EmptySessionSummary(), false, fmt.Errorf("%w: %w", ErrSummarizationFailed, err)
	}

	summary, err = ParseSummary(raw)
	if err != nil {
		s.logger.Warn("summary output malformed, using empty summary",
			"error", err,
			"response_length", len(raw),
		)
		return summary, false, nil
	}
	return summary, true, nil
}
