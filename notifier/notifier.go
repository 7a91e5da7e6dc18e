// Package notifier turns the PostgreSQL notifications sent by the SQL store
// into typed events for in-process subscribers.
//
// The store notifies inside the writing transaction, so subscribers only see
// committed compactions and deletions. Only drivers with dedicated listener
// connections (pgx/v5) deliver anything; with other drivers a Notifier runs
// but stays silent.
//
//	n := notifier.NewNotifier(drv.GetListener, nil)
//	n.Subscribe(notifier.EventSummarySaved, func(e *notifier.Event) {
//	    s, _ := e.SummarySaved()
//	    log.Printf("session %s compacted %d-%d", s.SessionID, s.FromIndex, s.ToIndex)
//	})
//	_ = n.Start(ctx)
//	defer n.Stop()
package notifier

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/youssefsiam38/convmem/driver"
)

// Handler receives events. Handlers run on the listener goroutine, one at a
// time and in commit order, so a slow handler delays every later event.
type Handler func(event *Event)

// Config tunes a Notifier. Zero fields take DefaultConfig values.
type Config struct {
	// ReconnectDelay is the first wait after the listener fails. It doubles
	// on each consecutive failure up to MaxReconnectDelay and resets once a
	// listener is established again.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	// OnError receives listener failures and recovered handler panics.
	OnError func(err error)

	// OnReconnect is called before each reconnection attempt.
	OnReconnect func()
}

// DefaultConfig returns a 5s reconnect delay backing off to one minute.
func DefaultConfig() *Config {
	return &Config{
		ReconnectDelay:    5 * time.Second,
		MaxReconnectDelay: time.Minute,
	}
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Notifier fans store notifications out to subscribers.
type Notifier struct {
	getListener func(ctx context.Context) (driver.Listener, error)
	config      Config

	mu     sync.RWMutex
	subs   map[EventType][]subscriber
	nextID uint64

	started atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewNotifier creates a notifier that obtains listeners from getListener.
// A nil getListener, or one returning a nil listener, yields no events.
func NewNotifier(getListener func(ctx context.Context) (driver.Listener, error), config *Config) *Notifier {
	cfg := *DefaultConfig()
	if config != nil {
		cfg.OnError = config.OnError
		cfg.OnReconnect = config.OnReconnect
		if config.ReconnectDelay > 0 {
			cfg.ReconnectDelay = config.ReconnectDelay
		}
		if config.MaxReconnectDelay > 0 {
			cfg.MaxReconnectDelay = config.MaxReconnectDelay
		}
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = cfg.ReconnectDelay
	}

	return &Notifier{
		getListener: getListener,
		config:      cfg,
		subs:        make(map[EventType][]subscriber),
	}
}

// Start runs the listener loop until Stop is called or ctx is cancelled.
func (n *Notifier) Start(ctx context.Context) error {
	if !n.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	go n.run(ctx)
	return nil
}

// Stop cancels the loop and waits until the listener is closed.
func (n *Notifier) Stop() error {
	if !n.started.Load() {
		return ErrNotStarted
	}
	n.cancel()
	<-n.done
	n.started.Store(false)
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (n *Notifier) IsRunning() bool {
	return n.started.Load()
}

// Subscribe registers handler for events of type t and returns a function
// that removes it. Calling the returned function more than once is harmless.
func (n *Notifier) Subscribe(t EventType, handler Handler) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs[t] = append(n.subs[t], subscriber{id: id, handler: handler})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { n.remove(t, id) })
	}
}

func (n *Notifier) remove(t EventType, id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	subs := n.subs[t]
	for i := range subs {
		if subs[i].id == id {
			n.subs[t] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (n *Notifier) run(ctx context.Context) {
	defer close(n.done)

	delay := n.config.ReconnectDelay
	for {
		established, err := n.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		if established {
			delay = n.config.ReconnectDelay
		}
		n.reportError(err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay = n.nextDelay(delay)

		if n.config.OnReconnect != nil {
			n.config.OnReconnect()
		}
	}
}

func (n *Notifier) nextDelay(cur time.Duration) time.Duration {
	return min(cur*2, n.config.MaxReconnectDelay)
}

// listen holds one listener until it fails or ctx ends. established is true
// once LISTEN succeeded.
func (n *Notifier) listen(ctx context.Context) (established bool, err error) {
	var listener driver.Listener
	if n.getListener != nil {
		listener, err = n.getListener(ctx)
		if err != nil {
			return false, fmt.Errorf("get listener: %w", err)
		}
	}
	if listener == nil {
		<-ctx.Done()
		return false, ctx.Err()
	}
	defer func() { _ = listener.Close() }()

	if err := listener.Listen(ctx, Channels()...); err != nil {
		return false, fmt.Errorf("listen: %w", err)
	}

	notifications := listener.Notifications()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case notification, ok := <-notifications:
			if !ok {
				return true, ErrListenerClosed
			}
			t, known := eventChannels[notification.Channel]
			if !known {
				continue
			}
			n.dispatch(&Event{Type: t, Payload: notification.Payload, ReceivedAt: time.Now()})
		}
	}
}

func (n *Notifier) dispatch(event *Event) {
	n.mu.RLock()
	subs := append([]subscriber(nil), n.subs[event.Type]...)
	n.mu.RUnlock()

	for _, sub := range subs {
		n.call(sub.handler, event)
	}
}

// call runs one handler and reports a panic through OnError.
func (n *Notifier) call(handler Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			n.reportError(fmt.Errorf("%w: %s: %v", ErrHandlerPanic, event.Type, r))
		}
	}()
	handler(event)
}

func (n *Notifier) reportError(err error) {
	if err != nil && n.config.OnError != nil {
		n.config.OnError(err)
	}
}
