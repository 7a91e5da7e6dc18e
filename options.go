package convmem

import (
	"time"

	"github.com/youssefsiam38/convmem/compaction"
	"github.com/youssefsiam38/convmem/generation"
	"github.com/youssefsiam38/convmem/hooks"
)

// Option is a functional option for configuring a Pipeline
type Option func(*internalConfig) error

// WithTokenThreshold sets the live token count above which a session is
// compacted (default 10000)
func WithTokenThreshold(tokens int) Option {
	return func(c *internalConfig) error {
		if tokens <= 0 {
			return NewPipelineError("WithTokenThreshold", ErrInvalidConfig).
				WithContext("tokens", tokens).
				WithContext("reason", "threshold must be positive")
		}
		c.compaction.Threshold = tokens
		return nil
	}
}

// WithRecentWindow sets how many of the latest messages the query analysis
// sees (default 10)
func WithRecentWindow(n int) Option {
	return func(c *internalConfig) error {
		if n <= 0 {
			return NewPipelineError("WithRecentWindow", ErrInvalidConfig).
				WithContext("n", n).
				WithContext("reason", "must be positive")
		}
		c.disambiguation.RecentWindow = n
		return nil
	}
}

// WithMaxClarifyingQuestions caps the clarifying questions of a hard stop (default 3)
func WithMaxClarifyingQuestions(n int) Option {
	return func(c *internalConfig) error {
		if n <= 0 {
			return NewPipelineError("WithMaxClarifyingQuestions", ErrInvalidConfig).
				WithContext("n", n).
				WithContext("reason", "must be positive")
		}
		c.disambiguation.MaxClarifyingQuestions = n
		return nil
	}
}

// WithResponseTemperature sets the sampling temperature for answers (default 0.7)
func WithResponseTemperature(t float64) Option {
	return func(c *internalConfig) error {
		c.response.Temperature = t
		return nil
	}
}

// WithTokenizer sets the tokenizer used to count new messages
func WithTokenizer(tokenizer compaction.Tokenizer) Option {
	return func(c *internalConfig) error {
		c.tokenizer = tokenizer
		return nil
	}
}

// WithLogger sets the logger for every stage
func WithLogger(logger Logger) Option {
	return func(c *internalConfig) error {
		c.logger = logger
		return nil
	}
}

// WithHooks replaces the hook registry
func WithHooks(registry *hooks.Registry) Option {
	return func(c *internalConfig) error {
		c.hooks = registry
		return nil
	}
}

// WithSummaryGenerator sets a separate generator for compaction summaries,
// typically a faster, cheaper model
func WithSummaryGenerator(gen generation.Generator) Option {
	return func(c *internalConfig) error {
		c.summaryGenerator = gen
		return nil
	}
}

// WithClock overrides the time source for message and summary timestamps
func WithClock(now func() time.Time) Option {
	return func(c *internalConfig) error {
		c.now = now
		return nil
	}
}
