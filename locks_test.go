package convmem

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionLocks(t *testing.T) {
	t.Run("same session waits", func(t *testing.T) {
		l := newSessionLocks()
		unlock, err := l.lock(context.Background(), "s1")
		if err != nil {
			t.Fatalf("lock: %v", err)
		}

		acquired := make(chan struct{})
		go func() {
			unlock2, err := l.lock(context.Background(), "s1")
			if err != nil {
				t.Errorf("second lock: %v", err)
				return
			}
			close(acquired)
			unlock2()
		}()

		select {
		case <-acquired:
			t.Fatal("second lock acquired while first was held")
		case <-time.After(50 * time.Millisecond):
		}

		unlock()
		select {
		case <-acquired:
		case <-time.After(time.Second):
			t.Fatal("second lock not acquired after release")
		}
	})

	t.Run("different sessions do not block", func(t *testing.T) {
		l := newSessionLocks()
		unlock1, err := l.lock(context.Background(), "s1")
		if err != nil {
			t.Fatalf("lock s1: %v", err)
		}
		defer unlock1()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		unlock2, err := l.lock(ctx, "s2")
		if err != nil {
			t.Fatalf("lock s2: %v", err)
		}
		unlock2()
	})

	t.Run("cancelled wait releases entry", func(t *testing.T) {
		l := newSessionLocks()
		unlock, err := l.lock(context.Background(), "s1")
		if err != nil {
			t.Fatalf("lock: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, err := l.lock(ctx, "s1"); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("got %v, want %v", err, context.DeadlineExceeded)
		}

		unlock()
		if n := l.size(); n != 0 {
			t.Errorf("expected no tracked sessions, got %d", n)
		}
	})
}
