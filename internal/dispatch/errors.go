package dispatch

import "errors"

// Every core operation reports precondition failures with one of these.
// The realtime boundary swallows them: clients never receive a rejection.
var (
	ErrNotFound        = errors.New("dispatch: not found")
	ErrInvalidState    = errors.New("dispatch: invalid state")
	ErrInvalidArgument = errors.New("dispatch: invalid argument")

	// ErrStaleConnection is returned by a Notifier when the connection is gone.
	ErrStaleConnection = errors.New("dispatch: stale connection")

	// ErrEmpty is returned by Queue.DequeueHead on an empty queue.
	ErrEmpty = errors.New("dispatch: queue empty")
)
