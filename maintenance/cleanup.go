// Package maintenance runs background upkeep over stored sessions.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/youssefsiam38/convmem/storage"
)

const (
	DefaultCleanupInterval = time.Minute
	DefaultBatchSize       = 100
)

var (
	ErrAlreadyStarted = errors.New("cleanup already started")
	ErrNotStarted     = errors.New("cleanup not started")
)

// SessionStore is what a cleanup pass needs. *convmem.Pipeline satisfies it
// and serializes each deletion with turns running on the same session.
type SessionStore interface {
	ListSessions(ctx context.Context) ([]*storage.SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// CleanupConfig tunes a Cleanup. MaxIdle zero disables expiry entirely.
type CleanupConfig struct {
	Interval time.Duration

	// MaxIdle is how long a session may go without a new message before it
	// is deleted along with its summaries.
	MaxIdle time.Duration

	// BatchSize caps deletions per pass; the rest wait for the next tick.
	BatchSize int

	// DryRun reports expired sessions without deleting them.
	DryRun bool

	Now func() time.Time

	// OnSessionsExpired receives the IDs deleted by a background pass.
	OnSessionsExpired func(sessionIDs []string)

	// OnError receives each failure of a background pass.
	OnError func(err error)
}

// DefaultCleanupConfig returns a one-minute interval with expiry disabled.
func DefaultCleanupConfig() *CleanupConfig {
	return &CleanupConfig{
		Interval:  DefaultCleanupInterval,
		BatchSize: DefaultBatchSize,
		Now:       time.Now,
	}
}

// CleanupResult is the outcome of one pass. SessionsExpired lists deleted
// sessions, or with DryRun the sessions that would have been deleted.
type CleanupResult struct {
	SessionsExpired []string
	Errors          []error
}

// Expired returns the sessions whose last message is older than cutoff,
// oldest first.
func Expired(sessions []*storage.SessionInfo, cutoff time.Time) []*storage.SessionInfo {
	var out []*storage.SessionInfo
	for _, s := range sessions {
		if s.LastMessageAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageAt.Before(out[j].LastMessageAt)
	})
	return out
}

// Cleanup periodically deletes idle sessions.
type Cleanup struct {
	store  SessionStore
	config CleanupConfig

	started atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewCleanup creates a cleanup over store. A nil config uses the defaults.
func NewCleanup(store SessionStore, config *CleanupConfig) *Cleanup {
	cfg := *DefaultCleanupConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCleanupInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cleanup{store: store, config: cfg}
}

// Start runs a pass immediately, then one per Interval until Stop.
func (c *Cleanup) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.loop(ctx)
	return nil
}

// Stop cancels the loop and waits for the current pass, or for ctx.
func (c *Cleanup) Stop(ctx context.Context) error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	c.cancel()
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.started.Store(false)
	return nil
}

// IsRunning reports whether the background loop is active.
func (c *Cleanup) IsRunning() bool {
	return c.started.Load()
}

func (c *Cleanup) loop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		c.report(c.RunOnce(ctx))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Cleanup) report(result *CleanupResult) {
	if len(result.SessionsExpired) > 0 && c.config.OnSessionsExpired != nil {
		c.config.OnSessionsExpired(result.SessionsExpired)
	}
	if c.config.OnError == nil {
		return
	}
	for _, err := range result.Errors {
		c.config.OnError(err)
	}
}

// RunOnce performs a single pass. A failed deletion is recorded and the
// pass moves on to the next session.
func (c *Cleanup) RunOnce(ctx context.Context) *CleanupResult {
	result := &CleanupResult{}
	if c.config.MaxIdle <= 0 {
		return result
	}

	sessions, err := c.store.ListSessions(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("list sessions: %w", err))
		return result
	}

	expired := Expired(sessions, c.config.Now().Add(-c.config.MaxIdle))
	if len(expired) > c.config.BatchSize {
		expired = expired[:c.config.BatchSize]
	}

	for _, s := range expired {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err())
			break
		}
		if !c.config.DryRun {
			if err := c.store.DeleteSession(ctx, s.ID); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("delete session %s: %w", s.ID, err))
				continue
			}
		}
		result.SessionsExpired = append(result.SessionsExpired, s.ID)
	}
	return result
}
