package sqlstore

import (
	"context"
	"fmt"

	"github.com/youssefsiam38/convmem/driver"
)

// Table names.
const (
	TableMessages  = "convmem_messages"
	TableSummaries = "convmem_summaries"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS convmem_messages (
		id          TEXT PRIMARY KEY,
		seq         BIGSERIAL NOT NULL UNIQUE,
		session_id  TEXT NOT NULL,
		role        TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content     TEXT NOT NULL,
		token_count INTEGER NOT NULL CHECK (token_count >= 0),
		metadata    JSONB,
		archived    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS convmem_messages_session_order_idx
		ON convmem_messages (session_id, created_at, seq)`,
	`CREATE INDEX IF NOT EXISTS convmem_messages_live_idx
		ON convmem_messages (session_id) WHERE NOT archived`,
	`CREATE TABLE IF NOT EXISTS convmem_summaries (
		id         TEXT PRIMARY KEY,
		seq        BIGSERIAL NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		summary    JSONB NOT NULL,
		from_index INTEGER NOT NULL,
		to_index   INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		CHECK (from_index >= 0 AND to_index >= from_index),
		UNIQUE (session_id, from_index)
	)`,
	`CREATE INDEX IF NOT EXISTS convmem_summaries_session_idx
		ON convmem_summaries (session_id, seq)`,
}

// Migrate creates the convmem tables and indexes if they do not exist.
// It runs in one transaction.
func Migrate(ctx context.Context, exec driver.Executor) error {
	tx, err := exec.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, stmt := range schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	committed = true
	return nil
}
