package disambiguation

import (
	"errors"
	"fmt"
)

// Default configuration values.
const (
	DefaultRecentWindow        = 10 // messages of recent context
	DefaultSummaryItems        = 3  // facts, questions and todos shown from memory
	DefaultMaxClarifying       = 3  // clarifying questions kept
	DefaultAnalyzerMaxTokens   = 2048
	DefaultAnalyzerTemperature = 0.3
)

// ErrInvalidConfig indicates invalid analyzer configuration.
var ErrInvalidConfig = errors.New("invalid disambiguation configuration")

// Config holds analyzer configuration.
type Config struct {
	// RecentWindow is how many of the latest messages, archived or not,
	// form the recent context.
	// Default: 10
	RecentWindow int

	// SummaryItems caps key facts, open questions and todos rendered from
	// the latest summary. Preferences and constraints are rendered in full.
	// Default: 3
	SummaryItems int

	// MaxClarifyingQuestions caps the clarifying questions kept.
	// Default: 3
	MaxClarifyingQuestions int

	// MaxTokens is the maximum tokens for the analysis response.
	// Default: 2048
	MaxTokens int

	// Temperature is the sampling temperature for analysis.
	// Default: 0.3 from DefaultConfig; zero requests greedy sampling.
	Temperature float64
}

// DefaultConfig returns a Config with defaults.
func DefaultConfig() *Config {
	return &Config{
		RecentWindow:           DefaultRecentWindow,
		SummaryItems:           DefaultSummaryItems,
		MaxClarifyingQuestions: DefaultMaxClarifying,
		MaxTokens:              DefaultAnalyzerMaxTokens,
		Temperature:            DefaultAnalyzerTemperature,
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.RecentWindow <= 0 {
		return fmt.Errorf("%w: recent_window must be positive, got %d", ErrInvalidConfig, c.RecentWindow)
	}
	if c.SummaryItems < 0 {
		return fmt.Errorf("%w: summary_items must be non-negative, got %d", ErrInvalidConfig, c.SummaryItems)
	}
	if c.MaxClarifyingQuestions <= 0 {
		return fmt.Errorf("%w: max_clarifying_questions must be positive, got %d", ErrInvalidConfig, c.MaxClarifyingQuestions)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidConfig, c.MaxTokens)
	}
	return nil
}

// ApplyDefaults fills in zero values with defaults. Temperature is left
// alone: zero is a valid setting, and DefaultConfig carries the default.
func (c *Config) ApplyDefaults() {
	if c.RecentWindow == 0 {
		c.RecentWindow = DefaultRecentWindow
	}
	if c.SummaryItems == 0 {
		c.SummaryItems = DefaultSummaryItems
	}
	if c.MaxClarifyingQuestions == 0 {
		c.MaxClarifyingQuestions = DefaultMaxClarifying
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultAnalyzerMaxTokens
	}
}
