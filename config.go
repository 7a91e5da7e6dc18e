package convmem

import (
	"fmt"
	"time"

	"github.com/youssefsiam38/convmem/compaction"
	"github.com/youssefsiam38/convmem/disambiguation"
	"github.com/youssefsiam38/convmem/generation"
	"github.com/youssefsiam38/convmem/hooks"
	"github.com/youssefsiam38/convmem/response"
	"github.com/youssefsiam38/convmem/storage"
)

// Logger is the structured logging contract shared by every stage.
// *slog.Logger satisfies it.
type Logger = compaction.Logger

// Config holds the required configuration for a pipeline.
//
// Example:
//
//	client := anthropic.NewClient()
//	drv := pgxv5.New(pool)
//	pipeline, _ := convmem.New(convmem.Config{
//	    Generator: generation.NewAnthropicGenerator(&client, "claude-sonnet-4-5-20250929", 4096),
//	    Store:     drv.GetStore(),
//	})
type Config struct {
	// Generator answers queries and, unless WithSummaryGenerator is given,
	// also produces summaries and query analyses (required)
	Generator generation.Generator

	// Store persists messages and summaries (required)
	Store storage.Store
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Generator == nil {
		return fmt.Errorf("%w: Generator is required", ErrInvalidConfig)
	}
	if c.Store == nil {
		return fmt.Errorf("%w: Store is required", ErrInvalidConfig)
	}
	return nil
}

// internalConfig holds the full pipeline configuration including optional parameters
type internalConfig struct {
	// Required from Config
	generator generation.Generator
	store     storage.Store

	// Optional parameters
	summaryGenerator generation.Generator // defaults to generator
	tokenizer        compaction.Tokenizer
	logger           Logger
	hooks            *hooks.Registry
	now              func() time.Time

	compaction     *compaction.Config
	disambiguation *disambiguation.Config
	response       *response.Config
}

// newInternalConfig creates a new internal config from the public Config
func newInternalConfig(cfg Config) *internalConfig {
	return &internalConfig{
		generator: cfg.Generator,
		store:     cfg.Store,

		tokenizer: compaction.ApproximateTokenizer{},
		logger:    compaction.NoopLogger(),
		hooks:     hooks.NewRegistry(),
		now:       time.Now,

		compaction:     compaction.DefaultConfig(),
		disambiguation: disambiguation.DefaultConfig(),
		response:       response.DefaultConfig(),
	}
}

// validate checks the combined configuration after options were applied
func (c *internalConfig) validate() error {
	if err := c.compaction.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.disambiguation.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.response.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
