package core

import (
	"context"
	"time"
)

// SignalChannel is the control-plane connection to the session server.
// Owned by the orchestrator; the orchestrator must Close() it.
type SignalChannel interface {
	// Request sends event with payload and decodes the response into out.
	// It fails with ErrTimeout after timeout, or a *RemoteError.
	Request(ctx context.Context, event string, payload any, timeout time.Duration, out any) error
	// Emit sends without waiting for an acknowledgement.
	Emit(event string, payload any) error
	// Events is closed when the connection ends.
	Events() <-chan Event
	Close() error
}

// SignalDialer establishes a SignalChannel. Inbound events must be buffered
// from the moment Dial returns.
type SignalDialer interface {
	Dial(ctx context.Context) (SignalChannel, error)
}
