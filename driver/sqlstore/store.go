// Package sqlstore implements storage.Store on PostgreSQL through the
// driver.Executor contract, so the pgx/v5 and database/sql drivers share it.
//
// Every write that depends on a session's ordering (appends, compaction,
// deletion) runs in a transaction holding
// pg_advisory_xact_lock(hashtext(session_id)).
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/youssefsiam38/convmem/driver"
	"github.com/youssefsiam38/convmem/storage"
	"github.com/youssefsiam38/convmem/types"
)

// SQLStateFunc extracts the PostgreSQL SQLSTATE code from a driver error,
// returning "" when err is not a server error.
type SQLStateFunc func(err error) string

// Store implements storage.Store.
type Store struct {
	exec     driver.Executor
	sqlState SQLStateFunc
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithSQLState lets the store classify server errors. Unique violations,
// serialization failures and deadlocks on the compaction path are then
// reported as storage.ErrRangeConflict.
func WithSQLState(fn SQLStateFunc) Option {
	return func(s *Store) {
		s.sqlState = fn
	}
}

// WithClock overrides the time source used for defaulted timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store over the pool-level executor.
func New(exec driver.Executor, opts ...Option) *Store {
	s := &Store{exec: exec, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ storage.Store = (*Store)(nil)

func (s *Store) getExecutor(ctx context.Context) driver.Executor {
	return driver.ExecutorOr(ctx, s.exec)
}

// withSessionTx runs fn in a transaction (a savepoint when ctx already
// carries one) that holds the session's advisory lock.
func (s *Store) withSessionTx(ctx context.Context, sessionID string, fn func(tx driver.Executor) error) error {
	tx, err := s.getExecutor(ctx).Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, sessionID); err != nil {
		return fmt.Errorf("failed to lock session: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// wrap classifies err under storage.ErrStorage or storage.ErrRangeConflict.
func (s *Store) wrap(op string, err error) error {
	if err == nil || errors.Is(err, storage.ErrRangeConflict) {
		return err
	}
	if s.sqlState != nil {
		switch s.sqlState(err) {
		case "23505", "40001", "40P01":
			return fmt.Errorf("%w: %s: %w", storage.ErrRangeConflict, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", storage.ErrStorage, op, err)
}

const messageColumns = `id, session_id, role, content, token_count, metadata, archived, created_at`

// AppendMessage implements storage.Store.
func (s *Store) AppendMessage(ctx context.Context, msg *types.Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidMessage, err)
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	var metadata any
	if msg.Metadata != nil {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("%w: failed to marshal metadata: %v", storage.ErrInvalidMessage, err)
		}
		metadata = string(raw)
	}

	// The stored timestamp is raised to the session's latest so that a new
	// message never takes an existing message's index.
	query := `
		INSERT INTO convmem_messages (id, session_id, role, content, token_count, metadata, archived, created_at)
		SELECT $1::text, $2::text, $3::text, $4::text, $5::integer, $6::jsonb, FALSE,
		       GREATEST($7::timestamptz, COALESCE(MAX(created_at), $7::timestamptz))
		FROM convmem_messages
		WHERE session_id = $2::text
		RETURNING created_at
	`

	err := s.withSessionTx(ctx, msg.SessionID, func(tx driver.Executor) error {
		return tx.QueryRow(ctx, query,
			msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.TokenCount, metadata, msg.Timestamp,
		).Scan(&msg.Timestamp)
	})
	if err != nil {
		return s.wrap("append message", err)
	}
	return nil
}

// ListMessages implements storage.Store.
func (s *Store) ListMessages(ctx context.Context, sessionID string, filter storage.Filter) ([]*types.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM convmem_messages WHERE session_id = $1`
	if filter == storage.FilterUnarchived {
		query += ` AND NOT archived`
	}
	query += ` ORDER BY created_at, seq`

	messages, err := s.queryMessages(ctx, query, sessionID)
	if err != nil {
		return nil, s.wrap("list messages", err)
	}
	return messages, nil
}

// ListRecentMessages implements storage.Store.
func (s *Store) ListRecentMessages(ctx context.Context, sessionID string, n int) ([]*types.Message, error) {
	if n <= 0 {
		return []*types.Message{}, nil
	}

	query := `
		SELECT ` + messageColumns + ` FROM (
			SELECT ` + messageColumns + `, seq
			FROM convmem_messages
			WHERE session_id = $1
			ORDER BY created_at DESC, seq DESC
			LIMIT $2
		) recent
		ORDER BY created_at, seq
	`

	messages, err := s.queryMessages(ctx, query, sessionID, n)
	if err != nil {
		return nil, s.wrap("list recent messages", err)
	}
	return messages, nil
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]*types.Message, error) {
	rows, err := s.getExecutor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*types.Message{}
	for rows.Next() {
		var msg types.Message
		var role string
		var metadataJSON []byte

		err := rows.Scan(
			&msg.ID,
			&msg.SessionID,
			&role,
			&msg.Content,
			&msg.TokenCount,
			&metadataJSON,
			&msg.Archived,
			&msg.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = types.Role(role)

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// CountMessages implements storage.Store.
func (s *Store) CountMessages(ctx context.Context, sessionID string) (int, error) {
	count, err := countMessages(ctx, s.getExecutor(ctx), sessionID)
	if err != nil {
		return 0, s.wrap("count messages", err)
	}
	return count, nil
}

func countMessages(ctx context.Context, exec driver.Executor, sessionID string) (int, error) {
	var count int
	err := exec.QueryRow(ctx,
		`SELECT COUNT(*) FROM convmem_messages WHERE session_id = $1`, sessionID,
	).Scan(&count)
	return count, err
}

// SaveSummary implements storage.Store.
func (s *Store) SaveSummary(ctx context.Context, summary *types.SessionMemoryOutput) error {
	if summary == nil || summary.SessionID == "" {
		return fmt.Errorf("%w: summary requires a session_id", storage.ErrStorage)
	}

	if summary.ID == "" {
		summary.ID = uuid.New().String()
	}
	if summary.Timestamp.IsZero() {
		summary.Timestamp = s.now()
	}

	stored := summary.SessionSummary
	stored.Normalize()
	summaryJSON, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal summary: %v", storage.ErrStorage, err)
	}

	r := summary.MessageRangeSummarized
	err = s.withSessionTx(ctx, summary.SessionID, func(tx driver.Executor) error {
		if err := checkRange(ctx, tx, summary.SessionID, r); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO convmem_summaries (id, session_id, summary, from_index, to_index, created_at)
			VALUES ($1, $2, $3::jsonb, $4, $5, $6)
		`, summary.ID, summary.SessionID, string(summaryJSON), r.FromIndex, r.ToIndex, summary.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert summary: %w", err)
		}

		if err := archiveRange(ctx, tx, summary.SessionID, r); err != nil {
			return err
		}

		payload, err := summarySavedPayload(summary.SessionID, summary.ID, r)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, driver.ChannelSummarySaved, payload); err != nil {
			return fmt.Errorf("failed to notify: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.wrap("save summary", err)
	}
	return nil
}

// MarkArchived implements storage.Store.
func (s *Store) MarkArchived(ctx context.Context, sessionID string, r types.MessageRange) error {
	err := s.withSessionTx(ctx, sessionID, func(tx driver.Executor) error {
		if err := checkRange(ctx, tx, sessionID, r); err != nil {
			return err
		}
		return archiveRange(ctx, tx, sessionID, r)
	})
	if err != nil {
		return s.wrap("mark archived", err)
	}
	return nil
}

// checkRange validates r against the session state seen under the lock.
func checkRange(ctx context.Context, tx driver.Executor, sessionID string, r types.MessageRange) error {
	total, err := countMessages(ctx, tx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to count messages: %w", err)
	}

	var previous *types.SessionMemoryOutput
	rows, err := tx.Query(ctx, `
		SELECT from_index, to_index FROM convmem_summaries
		WHERE session_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load previous summary: %w", err)
	}
	for rows.Next() {
		previous = &types.SessionMemoryOutput{}
		if err := rows.Scan(&previous.MessageRangeSummarized.FromIndex, &previous.MessageRangeSummarized.ToIndex); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan previous summary: %w", err)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load previous summary: %w", err)
	}

	archived := 0
	if r.Validate() == nil {
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM (
				SELECT archived FROM convmem_messages
				WHERE session_id = $1
				ORDER BY created_at, seq
				OFFSET $2 LIMIT $3
			) m
			WHERE m.archived
		`, sessionID, r.FromIndex, r.Len()).Scan(&archived)
		if err != nil {
			return fmt.Errorf("failed to count archived messages: %w", err)
		}
	}

	return storage.CheckRange(r, total, previous, archived)
}

func archiveRange(ctx context.Context, tx driver.Executor, sessionID string, r types.MessageRange) error {
	affected, err := tx.Exec(ctx, `
		UPDATE convmem_messages SET archived = TRUE
		WHERE id IN (
			SELECT id FROM convmem_messages
			WHERE session_id = $1
			ORDER BY created_at, seq
			OFFSET $2 LIMIT $3
		)
	`, sessionID, r.FromIndex, r.Len())
	if err != nil {
		return fmt.Errorf("failed to archive messages: %w", err)
	}
	if affected != int64(r.Len()) {
		return fmt.Errorf("%w: archived %d messages, expected %d", storage.ErrRangeConflict, affected, r.Len())
	}
	return nil
}

const summaryColumns = `id, session_id, summary, from_index, to_index, created_at`

// LatestSummary implements storage.Store.
func (s *Store) LatestSummary(ctx context.Context, sessionID string) (*types.SessionMemoryOutput, error) {
	summaries, err := s.querySummaries(ctx, `
		SELECT `+summaryColumns+` FROM convmem_summaries
		WHERE session_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, sessionID)
	if err != nil {
		return nil, s.wrap("latest summary", err)
	}
	if len(summaries) == 0 {
		return nil, nil
	}
	return summaries[0], nil
}

// ListSummaries implements storage.Store.
func (s *Store) ListSummaries(ctx context.Context, sessionID string) ([]*types.SessionMemoryOutput, error) {
	summaries, err := s.querySummaries(ctx, `
		SELECT `+summaryColumns+` FROM convmem_summaries
		WHERE session_id = $1
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, s.wrap("list summaries", err)
	}
	return summaries, nil
}

func (s *Store) querySummaries(ctx context.Context, query string, args ...any) ([]*types.SessionMemoryOutput, error) {
	rows, err := s.getExecutor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []*types.SessionMemoryOutput{}
	for rows.Next() {
		var out types.SessionMemoryOutput
		var summaryJSON []byte

		err := rows.Scan(
			&out.ID,
			&out.SessionID,
			&summaryJSON,
			&out.MessageRangeSummarized.FromIndex,
			&out.MessageRangeSummarized.ToIndex,
			&out.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		if err := json.Unmarshal(summaryJSON, &out.SessionSummary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
		}
		out.SessionSummary.Normalize()
		summaries = append(summaries, &out)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// DeleteSession implements storage.Store.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	err := s.withSessionTx(ctx, sessionID, func(tx driver.Executor) error {
		if _, err := tx.Exec(ctx, `DELETE FROM convmem_summaries WHERE session_id = $1`, sessionID); err != nil {
			return fmt.Errorf("failed to delete summaries: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM convmem_messages WHERE session_id = $1`, sessionID); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, driver.ChannelSessionDeleted, sessionID); err != nil {
			return fmt.Errorf("failed to notify: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.wrap("delete session", err)
	}
	return nil
}

// ListSessions implements storage.Store.
func (s *Store) ListSessions(ctx context.Context) ([]*storage.SessionInfo, error) {
	rows, err := s.getExecutor(ctx).Query(ctx, `
		SELECT session_id, COUNT(*), MIN(created_at), MAX(created_at)
		FROM convmem_messages
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC, session_id
	`)
	if err != nil {
		return nil, s.wrap("list sessions", err)
	}
	defer rows.Close()

	sessions := []*storage.SessionInfo{}
	for rows.Next() {
		var info storage.SessionInfo
		if err := rows.Scan(&info.ID, &info.MessageCount, &info.FirstMessageAt, &info.LastMessageAt); err != nil {
			return nil, s.wrap("list sessions", fmt.Errorf("failed to scan session: %w", err))
		}
		sessions = append(sessions, &info)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list sessions", err)
	}
	return sessions, nil
}

// SessionStats implements storage.Store.
func (s *Store) SessionStats(ctx context.Context, sessionID string) (*storage.SessionStats, error) {
	stats := &storage.SessionStats{SessionID: sessionID}
	exec := s.getExecutor(ctx)

	err := exec.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE archived),
			COALESCE(SUM(token_count), 0)::BIGINT,
			COALESCE(SUM(token_count) FILTER (WHERE NOT archived), 0)::BIGINT
		FROM convmem_messages
		WHERE session_id = $1
	`, sessionID).Scan(&stats.MessageCount, &stats.ArchivedCount, &stats.TotalTokens, &stats.LiveTokens)
	if err != nil {
		return nil, s.wrap("session stats", err)
	}

	err = exec.QueryRow(ctx,
		`SELECT COUNT(*) FROM convmem_summaries WHERE session_id = $1`, sessionID,
	).Scan(&stats.SummaryCount)
	if err != nil {
		return nil, s.wrap("session stats", err)
	}
	return stats, nil
}

// summarySavedPayload is the JSON body sent on ChannelSummarySaved.
func summarySavedPayload(sessionID, summaryID string, r types.MessageRange) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"session_id": sessionID,
		"summary_id": summaryID,
		"from_index": r.FromIndex,
		"to_index":   r.ToIndex,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode notification: %w", err)
	}
	return string(payload), nil
}
