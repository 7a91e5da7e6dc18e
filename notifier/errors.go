package notifier

import "errors"

var (
	ErrAlreadyStarted = errors.New("notifier already started")
	ErrNotStarted     = errors.New("notifier not started")

	// ErrListenerClosed means the listener's connection dropped.
	ErrListenerClosed = errors.New("listener closed")

	// ErrHandlerPanic wraps a panic recovered from a subscriber.
	ErrHandlerPanic = errors.New("event handler panicked")

	ErrUnexpectedEvent  = errors.New("unexpected event type")
	ErrMalformedPayload = errors.New("malformed notification payload")
)
