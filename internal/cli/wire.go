package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/youssefsiam38/convmem"
	"github.com/youssefsiam38/convmem/compaction"
	"github.com/youssefsiam38/convmem/driver"
	"github.com/youssefsiam38/convmem/driver/databasesql"
	"github.com/youssefsiam38/convmem/driver/pgxv5"
	"github.com/youssefsiam38/convmem/generation"
	"github.com/youssefsiam38/convmem/hooks"
	"github.com/youssefsiam38/convmem/internal/config"
	"github.com/youssefsiam38/convmem/storage"
)

var errNoDatabase = errors.New("command requires a PostgreSQL driver (pgx or sql)")

// backend is an opened store with the driver capabilities it offers.
type backend struct {
	store storage.Store

	// migrate is nil for the in-memory store.
	migrate func(ctx context.Context) error

	// listener is nil unless the driver holds dedicated listener connections.
	listener func(ctx context.Context) (driver.Listener, error)

	close func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Driver {
	case config.DriverPGX:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		drv := pgxv5.New(pool)
		return &backend{
			store:    drv.GetStore(),
			migrate:  drv.Migrate,
			listener: drv.GetListener,
			close:    pool.Close,
		}, nil

	case config.DriverSQL:
		drv, err := databasesql.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		return &backend{
			store:   drv.GetStore(),
			migrate: drv.Migrate,
			close:   func() { _ = drv.Close() },
		}, nil

	case config.DriverMemory:
		return &backend{
			store: storage.NewMemoryStore(),
			close: func() {},
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown driver %q", config.ErrInvalidConfig, cfg.Driver)
}

// newPipeline wires the Anthropic generator, tokenizer, logging hooks and
// the configured limits around store.
func newPipeline(st *state, store storage.Store) (*convmem.Pipeline, error) {
	cfg := st.cfg

	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	client := anthropic.NewClient(opts...)

	registry := hooks.NewRegistry()
	registry.Register(hooks.NewLoggingHooks(st.logger))

	pipelineOpts := []convmem.Option{
		convmem.WithLogger(st.logger),
		convmem.WithHooks(registry),
		convmem.WithTokenThreshold(cfg.TokenThreshold),
		convmem.WithRecentWindow(cfg.RecentWindow),
		convmem.WithMaxClarifyingQuestions(cfg.MaxClarifyingQuestions),
		convmem.WithResponseTemperature(cfg.ResponseTemperature),
	}
	if cfg.Tokenizer == config.TokenizerAPI {
		pipelineOpts = append(pipelineOpts, convmem.WithTokenizer(compaction.NewAPITokenizer(&client, cfg.Model, st.logger)))
	}
	if cfg.SummaryModel != "" && cfg.SummaryModel != cfg.Model {
		pipelineOpts = append(pipelineOpts, convmem.WithSummaryGenerator(generation.NewAnthropicGenerator(&client, cfg.SummaryModel, cfg.MaxTokens)))
	}

	return convmem.New(convmem.Config{
		Generator: generation.NewAnthropicGenerator(&client, cfg.Model, cfg.MaxTokens),
		Store:     store,
	}, pipelineOpts...)
}

// withPipeline opens the backend, builds the pipeline and runs fn.
func withPipeline(ctx context.Context, st *state, fn func(*convmem.Pipeline, *backend) error) error {
	be, err := openBackend(ctx, st.cfg)
	if err != nil {
		return err
	}
	defer be.close()

	pipeline, err := newPipeline(st, be.store)
	if err != nil {
		return err
	}
	return fn(pipeline, be)
}
