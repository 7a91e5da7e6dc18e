// Package response turns a QueryUnderstanding into the assistant's reply.
//
// A query that is ambiguous, could not be rewritten and carries clarifying
// questions ends the turn with a hard stop: the questions are returned as a
// numbered list and the generation service is not called. Every other query
// gets a best-effort answer, which lays out each reading when there are
// several.
package response

import (
	"context"
	"errors"
	"fmt"

	"github.com/youssefsiam38/convmem/compaction"
	"github.com/youssefsiam38/convmem/generation"
	"github.com/youssefsiam38/convmem/types"
)

// ErrResponseFailed indicates the generation call for an answer failed.
var ErrResponseFailed = errors.New("response generation failed")

// Branch names the path a reply took.
type Branch string

const (
	BranchHardStop   Branch = "hard_stop"
	BranchBestEffort Branch = "best_effort"
)

// Reply is the output of the policy.
type Reply struct {
	Text   string
	Branch Branch

	// Interpretations is how many readings the best-effort prompt laid out;
	// zero for a direct answer or a hard stop.
	Interpretations int
}

// Policy decides between a hard stop and a best-effort answer.
type Policy struct {
	generator generation.Generator
	config    *Config
	logger    compaction.Logger
}

// New creates a Policy. If config is nil, default configuration is used.
func New(gen generation.Generator, config *Config, logger compaction.Logger) *Policy {
	if config == nil {
		config = DefaultConfig()
	} else {
		config.ApplyDefaults()
	}
	if logger == nil {
		logger = compaction.NoopLogger()
	}
	return &Policy{generator: gen, config: config, logger: logger}
}

// IsHardStop reports whether u ends the turn with clarifying questions.
func IsHardStop(u *types.QueryUnderstanding) bool {
	return u.IsAmbiguous && u.Rewritten() == "" && len(u.ClarifyingQuestions) > 0
}

// Respond produces the reply for u. Generated text is returned verbatim.
func (p *Policy) Respond(ctx context.Context, u *types.QueryUnderstanding) (*Reply, error) {
	if u == nil {
		return nil, fmt.Errorf("%w: query understanding is nil", ErrResponseFailed)
	}

	if IsHardStop(u) {
		p.logger.Debug("hard stop", "questions", len(u.ClarifyingQuestions))
		return &Reply{
			Text:   FormatClarification(u.ClarifyingQuestions),
			Branch: BranchHardStop,
		}, nil
	}

	query := u.EffectiveQuery()

	var prompt string
	interpretations := 0
	if len(u.PossibleInterpretations) > 1 {
		interpretations = len(u.PossibleInterpretations)
		prompt = BuildMultiInterpretationPrompt(u.FinalAugmentedContext, query, u.PossibleInterpretations)
	} else {
		prompt = BuildDirectPrompt(u.FinalAugmentedContext, query)
	}

	text, err := p.generator.Generate(ctx, &generation.Request{
		System:      SystemPrompt,
		Messages:    []generation.Block{generation.User(prompt)},
		Temperature: generation.Float(p.config.Temperature),
		MaxTokens:   p.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResponseFailed, err)
	}

	p.logger.Debug("response generated",
		"interpretations", interpretations,
		"response_length", len(text),
	)

	return &Reply{
		Text:            text,
		Branch:          BranchBestEffort,
		Interpretations: interpretations,
	}, nil
}
