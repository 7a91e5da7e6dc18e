package response

import (
	"errors"
	"fmt"
)

const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.7
)

// ErrInvalidConfig indicates invalid response configuration.
var ErrInvalidConfig = errors.New("invalid response configuration")

// Config holds response policy configuration.
type Config struct {
	// MaxTokens is the maximum tokens for a generated answer.
	// Default: 4096
	MaxTokens int

	// Temperature is the sampling temperature for answers.
	// Default: 0.7 from DefaultConfig; zero requests greedy sampling.
	Temperature float64
}

// DefaultConfig returns a Config with defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidConfig, c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("%w: temperature must be between 0 and 1, got %f", ErrInvalidConfig, c.Temperature)
	}
	return nil
}

// ApplyDefaults fills in zero values with defaults. Temperature is left
// alone: zero is a valid setting, and DefaultConfig carries the default.
func (c *Config) ApplyDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
}
