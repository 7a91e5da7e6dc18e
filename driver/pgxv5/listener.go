package pgxv5

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/youssefsiam38/convmem/driver"
)

var (
	errListenerClosed  = errors.New("pgxv5: listener is closed")
	errListenerStarted = errors.New("pgxv5: listener already listening")
)

// notificationBuffer is how many notifications may wait for a slow reader
// before the connection stops reading.
const notificationBuffer = 100

// Listener holds one pool connection in LISTEN mode. The connection is
// hijacked from the pool, so it never returns there still subscribed.
type Listener struct {
	pool *pgxpool.Pool
	out  chan driver.Notification

	mu     sync.Mutex
	state  listenerState
	cancel context.CancelFunc
	exited chan struct{}
}

type listenerState int

const (
	stateIdle listenerState = iota
	stateListening
	stateClosed
)

var _ driver.Listener = (*Listener)(nil)

// NewListener creates an idle listener; no connection is taken until Listen.
func NewListener(pool *pgxpool.Pool) *Listener {
	return &Listener{
		pool:   pool,
		out:    make(chan driver.Notification, notificationBuffer),
		exited: make(chan struct{}),
	}
}

// Listen subscribes a dedicated connection to channels and starts
// forwarding notifications. It may be called once per Listener.
func (l *Listener) Listen(ctx context.Context, channels ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case stateClosed:
		return errListenerClosed
	case stateListening:
		return errListenerStarted
	}

	pooled, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	conn := pooled.Hijack()

	if err := subscribe(ctx, conn, channels); err != nil {
		closeConn(conn)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.state = stateListening
	go l.forward(loopCtx, conn)
	return nil
}

// subscribe issues every LISTEN in one simple-protocol round trip.
func subscribe(ctx context.Context, conn *pgx.Conn, channels []string) error {
	if len(channels) == 0 {
		return nil
	}
	stmts := make([]string, len(channels))
	for i, ch := range channels {
		stmts[i] = "LISTEN " + pgx.Identifier{ch}.Sanitize()
	}
	if _, err := conn.PgConn().Exec(ctx, strings.Join(stmts, "; ")).ReadAll(); err != nil {
		return fmt.Errorf("listen on %s: %w", strings.Join(channels, ", "), err)
	}
	return nil
}

func closeConn(conn *pgx.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = conn.Close(ctx)
}

// forward owns conn and the output channel until ctx is cancelled or the
// connection fails. Closing the output channel is how readers learn the
// connection dropped.
func (l *Listener) forward(ctx context.Context, conn *pgx.Conn) {
	defer close(l.exited)
	defer close(l.out)
	defer closeConn(conn)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return
		}
		select {
		case l.out <- driver.Notification{Channel: n.Channel, Payload: n.Payload}:
		case <-ctx.Done():
			return
		}
	}
}

// Notifications returns the channel notifications arrive on. It is closed
// when the listener is closed or its connection drops.
func (l *Listener) Notifications() <-chan driver.Notification {
	return l.out
}

// Close stops forwarding and closes the connection. Repeated calls are no-ops.
func (l *Listener) Close() error {
	l.mu.Lock()
	prev := l.state
	l.state = stateClosed
	l.mu.Unlock()

	switch prev {
	case stateIdle:
		close(l.out)
	case stateListening:
		l.cancel()
		<-l.exited
	}
	return nil
}
