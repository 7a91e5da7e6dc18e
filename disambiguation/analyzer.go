// Package disambiguation classifies an incoming query against the recent
// conversation and session memory, producing a QueryUnderstanding that the
// response policy acts on.
//
// The generator proposes the classification; the Analyzer then enforces the
// rules it must satisfy:
//
//   - an explicit delegation ("you decide") is never ambiguous and carries at
//     most one interpretation and no clarifying questions
//   - with two or more interpretations, clarifying questions are dropped
//   - at most MaxClarifyingQuestions questions are kept
//   - final_augmented_context is never empty
//
// A reply that does not decode falls back to a neutral, non-ambiguous
// understanding whose context is the recent window.
package disambiguation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/youssefsiam38/convmem/compaction"
	"github.com/youssefsiam38/convmem/generation"
	"github.com/youssefsiam38/convmem/storage"
	"github.com/youssefsiam38/convmem/types"
)

// ErrAnalysisFailed indicates the generation call for a query analysis failed.
var ErrAnalysisFailed = errors.New("query analysis failed")

// Input is everything an analysis looks at.
type Input struct {
	Query  string
	Recent []*types.Message
	Latest *types.SessionMemoryOutput
}

// Analyzer produces a QueryUnderstanding per turn.
type Analyzer struct {
	store     storage.Store
	generator generation.Generator
	config    *Config
	logger    compaction.Logger
}

// New creates an Analyzer. If config is nil, default configuration is used.
func New(store storage.Store, gen generation.Generator, config *Config, logger compaction.Logger) *Analyzer {
	if config == nil {
		config = DefaultConfig()
	} else {
		config.ApplyDefaults()
	}
	if logger == nil {
		logger = compaction.NoopLogger()
	}
	return &Analyzer{
		store:     store,
		generator: gen,
		config:    config,
		logger:    logger,
	}
}

// Analyze loads the recent window and latest summary of the session and
// analyzes query against them.
func (a *Analyzer) Analyze(ctx context.Context, sessionID, query string) (*types.QueryUnderstanding, error) {
	recent, err := a.store.ListRecentMessages(ctx, sessionID, a.config.RecentWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	latest, err := a.store.LatestSummary(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest summary: %w", err)
	}
	return a.Understand(ctx, &Input{Query: query, Recent: recent, Latest: latest})
}

// Understand analyzes in without touching the store.
func (a *Analyzer) Understand(ctx context.Context, in *Input) (*types.QueryUnderstanding, error) {
	windowText := RenderWindow(in.Recent)

	var memoryText string
	if in.Latest != nil {
		memoryText = RenderMemory(&in.Latest.SessionSummary, a.config.SummaryItems)
	}

	req := &generation.Request{
		System: AnalysisSystemPrompt,
		Messages: []generation.Block{
			generation.User(BuildAnalysisUserPrompt(windowText, memoryText, in.Query)),
		},
		Temperature: generation.Float(a.config.Temperature),
		MaxTokens:   a.config.MaxTokens,
	}

	raw, err := a.generator.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	understanding, err := ParseUnderstanding(raw, in.Query, windowText)
	if err != nil {
		a.logger.Warn("query analysis malformed, using neutral understanding",
			"error", err,
			"response_length", len(raw),
		)
	}

	Enforce(understanding, in.Query, windowText, a.config.MaxClarifyingQuestions)

	a.logger.Debug("query analyzed",
		"ambiguous", understanding.IsAmbiguous,
		"interpretations", len(understanding.PossibleInterpretations),
		"clarifying_questions", len(understanding.ClarifyingQuestions),
	)

	return understanding, nil
}

// ParseUnderstanding decodes a generated analysis. On failure it returns the
// neutral fallback {original_query: query, is_ambiguous: false,
// final_augmented_context: windowText} together with an error wrapping
// generation.ErrMalformedOutput.
func ParseUnderstanding(raw, query, windowText string) (*types.QueryUnderstanding, error) {
	var understanding types.QueryUnderstanding
	if err := generation.DecodeObject(raw, &understanding); err != nil {
		return Fallback(query, windowText), err
	}
	understanding.PossibleInterpretations = nonNil(understanding.PossibleInterpretations)
	understanding.NeededContextFromMemory = nonNil(understanding.NeededContextFromMemory)
	understanding.ClarifyingQuestions = nonNil(understanding.ClarifyingQuestions)
	return &understanding, nil
}

// Fallback is the neutral understanding used when analysis output is unusable.
func Fallback(query, windowText string) *types.QueryUnderstanding {
	return &types.QueryUnderstanding{
		OriginalQuery:           query,
		IsAmbiguous:             false,
		PossibleInterpretations: []string{},
		NeededContextFromMemory: []string{},
		ClarifyingQuestions:     []string{},
		FinalAugmentedContext:   windowText,
	}
}

// Enforce applies the classification rules to u in place.
func Enforce(u *types.QueryUnderstanding, query, windowText string, maxQuestions int) {
	u.OriginalQuery = query
	u.PossibleInterpretations = compact(u.PossibleInterpretations)
	u.NeededContextFromMemory = compact(u.NeededContextFromMemory)
	u.ClarifyingQuestions = compact(u.ClarifyingQuestions)

	if u.Rewritten() == "" {
		u.RewrittenQuery = nil
	}

	if IsDelegation(query) {
		u.IsAmbiguous = false
		if len(u.PossibleInterpretations) > 1 {
			u.PossibleInterpretations = u.PossibleInterpretations[:1]
		}
		if u.RewrittenQuery == nil && len(u.PossibleInterpretations) == 1 {
			u.RewrittenQuery = types.StringPtr(u.PossibleInterpretations[0])
		}
		u.ClarifyingQuestions = []string{}
	}

	if len(u.PossibleInterpretations) >= 2 {
		u.ClarifyingQuestions = []string{}
	}

	if maxQuestions > 0 && len(u.ClarifyingQuestions) > maxQuestions {
		u.ClarifyingQuestions = u.ClarifyingQuestions[:maxQuestions]
	}

	if strings.TrimSpace(u.FinalAugmentedContext) == "" {
		u.FinalAugmentedContext = windowText
	}
}

// compact trims items and drops empty ones; it never returns nil.
func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
