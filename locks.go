package convmem

import (
	"context"
	"sync"
)

// sessionLocks serializes turns per session. Entries are reference counted
// and dropped when no turn holds or waits for them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sem  chan struct{}
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// lock blocks until the session is free or ctx is done. The returned func
// releases the lock and must be called exactly once.
func (l *sessionLocks) lock(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	sl, ok := l.locks[sessionID]
	if !ok {
		sl = &sessionLock{sem: make(chan struct{}, 1)}
		l.locks[sessionID] = sl
	}
	sl.refs++
	l.mu.Unlock()

	select {
	case sl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(sessionID, sl)
		return nil, ctx.Err()
	}

	return func() {
		<-sl.sem
		l.release(sessionID, sl)
	}, nil
}

func (l *sessionLocks) release(sessionID string, sl *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, sessionID)
	}
}

// size is the number of tracked sessions.
func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
