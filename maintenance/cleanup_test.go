package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/youssefsiam38/convmem/storage"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// cleanupMockStore implements SessionStore for cleanup testing.
type cleanupMockStore struct {
	mu       sync.Mutex
	sessions []*storage.SessionInfo
	deleted  []string

	listErr   error
	deleteErr map[string]error
}

func (m *cleanupMockStore) ListSessions(ctx context.Context) ([]*storage.SessionInfo, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.sessions, nil
}

func (m *cleanupMockStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := m.deleteErr[sessionID]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, sessionID)
	return nil
}

func idleSessions() []*storage.SessionInfo {
	return []*storage.SessionInfo{
		{ID: "fresh", LastMessageAt: now.Add(-time.Minute)},
		{ID: "old-1", LastMessageAt: now.Add(-48 * time.Hour)},
		{ID: "old-2", LastMessageAt: now.Add(-25 * time.Hour)},
	}
}

func testConfig() *CleanupConfig {
	return &CleanupConfig{
		Interval: 50 * time.Millisecond,
		MaxIdle:  24 * time.Hour,
		Now:      func() time.Time { return now },
	}
}

func TestCleanup_StartStop(t *testing.T) {
	store := &cleanupMockStore{}
	cleanup := NewCleanup(store, testConfig())

	ctx := context.Background()

	// Start should succeed
	if err := cleanup.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !cleanup.IsRunning() {
		t.Error("Expected cleanup to be running")
	}

	// Second start should fail
	if err := cleanup.Start(ctx); err != ErrAlreadyStarted {
		t.Fatalf("Start() error = %v, want %v", err, ErrAlreadyStarted)
	}

	// Stop should succeed
	if err := cleanup.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if cleanup.IsRunning() {
		t.Error("Expected cleanup to not be running")
	}
}

func TestCleanup_StopNotStarted(t *testing.T) {
	store := &cleanupMockStore{}
	cleanup := NewCleanup(store, nil)

	if err := cleanup.Stop(context.Background()); err != ErrNotStarted {
		t.Fatalf("Stop() error = %v, want %v", err, ErrNotStarted)
	}
}

func TestCleanup_RunOnce_ExpiresIdleSessions(t *testing.T) {
	store := &cleanupMockStore{sessions: idleSessions()}
	cleanup := NewCleanup(store, testConfig())

	result := cleanup.RunOnce(context.Background())

	if len(result.Errors) != 0 {
		t.Fatalf("Errors = %v", result.Errors)
	}
	if len(result.SessionsExpired) != 2 {
		t.Fatalf("SessionsExpired = %v, want old-1 and old-2", result.SessionsExpired)
	}
	for _, id := range store.deleted {
		if id == "fresh" {
			t.Error("fresh session was deleted")
		}
	}
}

func TestCleanup_RunOnce_Disabled(t *testing.T) {
	store := &cleanupMockStore{sessions: idleSessions()}
	cfg := testConfig()
	cfg.MaxIdle = 0
	cleanup := NewCleanup(store, cfg)

	result := cleanup.RunOnce(context.Background())

	if len(result.SessionsExpired) != 0 || len(store.deleted) != 0 {
		t.Errorf("expected no deletions when MaxIdle is zero, got %v", store.deleted)
	}
}

func TestCleanup_RunOnce_Errors(t *testing.T) {
	t.Run("list failure", func(t *testing.T) {
		listErr := errors.New("connection refused")
		cleanup := NewCleanup(&cleanupMockStore{listErr: listErr}, testConfig())

		result := cleanup.RunOnce(context.Background())
		if len(result.Errors) != 1 || !errors.Is(result.Errors[0], listErr) {
			t.Errorf("Errors = %v, want %v", result.Errors, listErr)
		}
	})

	t.Run("delete failure continues", func(t *testing.T) {
		deleteErr := errors.New("deadlock")
		store := &cleanupMockStore{
			sessions:  idleSessions(),
			deleteErr: map[string]error{"old-1": deleteErr},
		}
		cleanup := NewCleanup(store, testConfig())

		result := cleanup.RunOnce(context.Background())
		if len(result.Errors) != 1 || !errors.Is(result.Errors[0], deleteErr) {
			t.Errorf("Errors = %v, want %v", result.Errors, deleteErr)
		}
		if len(result.SessionsExpired) != 1 || result.SessionsExpired[0] != "old-2" {
			t.Errorf("SessionsExpired = %v, want [old-2]", result.SessionsExpired)
		}
	})
}

func TestCleanup_Callbacks(t *testing.T) {
	store := &cleanupMockStore{
		sessions:  idleSessions(),
		deleteErr: map[string]error{"old-2": errors.New("boom")},
	}

	var mu sync.Mutex
	var expired []string
	var errs []error

	cfg := testConfig()
	cfg.OnSessionsExpired = func(ids []string) {
		mu.Lock()
		expired = append(expired, ids...)
		mu.Unlock()
	}
	cfg.OnError = func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	cleanup := NewCleanup(store, cfg)

	ctx := context.Background()

	if err := cleanup.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Wait for at least one cleanup cycle
	time.Sleep(30 * time.Millisecond)

	if err := cleanup.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(expired) == 0 || expired[0] != "old-1" {
		t.Errorf("OnSessionsExpired got %v, want old-1 first", expired)
	}
	if len(errs) == 0 {
		t.Error("OnError was not called")
	}
}

func TestDefaultCleanupConfig(t *testing.T) {
	config := DefaultCleanupConfig()

	if config.Interval != DefaultCleanupInterval {
		t.Errorf("Interval = %v, want %v", config.Interval, DefaultCleanupInterval)
	}

	if config.MaxIdle != 0 {
		t.Errorf("MaxIdle = %v, want disabled", config.MaxIdle)
	}
	if config.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", config.BatchSize, DefaultBatchSize)
	}
}

func TestExpired(t *testing.T) {
	got := Expired(idleSessions(), now.Add(-24*time.Hour))
	if len(got) != 2 || got[0].ID != "old-1" || got[1].ID != "old-2" {
		ids := make([]string, len(got))
		for i, s := range got {
			ids[i] = s.ID
		}
		t.Errorf("Expired() = %v, want [old-1 old-2]", ids)
	}

	if got := Expired(nil, now); len(got) != 0 {
		t.Errorf("Expired(nil) = %v, want empty", got)
	}
}

func TestCleanup_RunOnce_BatchSize(t *testing.T) {
	store := &cleanupMockStore{sessions: idleSessions()}
	cfg := testConfig()
	cfg.BatchSize = 1

	result := NewCleanup(store, cfg).RunOnce(context.Background())
	if len(result.SessionsExpired) != 1 || result.SessionsExpired[0] != "old-1" {
		t.Errorf("SessionsExpired = %v, want [old-1]", result.SessionsExpired)
	}
}

func TestCleanup_RunOnce_DryRun(t *testing.T) {
	store := &cleanupMockStore{sessions: idleSessions()}
	cfg := testConfig()
	cfg.DryRun = true

	result := NewCleanup(store, cfg).RunOnce(context.Background())
	if len(result.SessionsExpired) != 2 {
		t.Errorf("SessionsExpired = %v, want two candidates", result.SessionsExpired)
	}
	if len(store.deleted) != 0 {
		t.Errorf("dry run deleted %v", store.deleted)
	}
}

func TestCleanup_RunOnce_Cancelled(t *testing.T) {
	store := &cleanupMockStore{sessions: idleSessions()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewCleanup(store, testConfig()).RunOnce(ctx)
	if len(store.deleted) != 0 {
		t.Errorf("deleted %v after cancellation", store.deleted)
	}
	if len(result.Errors) != 1 || !errors.Is(result.Errors[0], context.Canceled) {
		t.Errorf("Errors = %v, want context.Canceled", result.Errors)
	}
}
