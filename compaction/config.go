package compaction

import (
	"fmt"
)

const (
	DefaultThreshold           = 10000
	DefaultSummarizerMaxTokens = 4096
	DefaultTemperature         = 0.3
)

type Config struct {
	// Threshold is the live token count that must be exceeded, strictly,
	// before a range is summarized.
	Threshold int

	SummarizerMaxTokens int
	Temperature         float64
}

func DefaultConfig() *Config {
	return &Config{
		Threshold:           DefaultThreshold,
		SummarizerMaxTokens: DefaultSummarizerMaxTokens,
		Temperature:         DefaultTemperature,
	}
}

// Validate reports the first out-of-range field, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Threshold <= 0:
		return fmt.Errorf("%w: threshold must be positive, got %d", ErrInvalidConfig, c.Threshold)
	case c.SummarizerMaxTokens <= 0:
		return fmt.Errorf("%w: summarizer_max_tokens must be positive, got %d", ErrInvalidConfig, c.SummarizerMaxTokens)
	case c.Temperature < 0 || c.Temperature > 1:
		return fmt.Errorf("%w: temperature %.2f outside [0, 1]", ErrInvalidConfig, c.Temperature)
	}
	return nil
}

// ApplyDefaults replaces zero fields with the package defaults. A zero
// Temperature cannot be requested explicitly.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Threshold == 0 {
		c.Threshold = d.Threshold
	}
	if c.SummarizerMaxTokens == 0 {
		c.SummarizerMaxTokens = d.SummarizerMaxTokens
	}
	if c.Temperature == 0 {
		c.Temperature = d.Temperature
	}
}
