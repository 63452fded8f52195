package core

import (
	"errors"
	"fmt"
)

var (
	ErrAcquisition             = errors.New("local media acquisition failed")
	ErrTimeout                 = errors.New("signal request timed out")
	ErrRemoteRejected          = errors.New("signal request rejected")
	ErrUnsupportedCapabilities = errors.New("unsupported rtp capabilities")
	ErrTransportConnect        = errors.New("transport connect failed")
	ErrTransportNotConnected   = errors.New("transport not connected")
	ErrTransportExists         = errors.New("transport already exists")
	ErrCannotProduce           = errors.New("cannot produce media kind")
	ErrInvalidKind             = errors.New("invalid media kind")
	ErrSignalClosed            = errors.New("signal channel closed")
	ErrBackpressure            = errors.New("backpressure")
)

// RemoteError is an explicit error payload returned by the signaling server.
type RemoteError struct {
	Event  string
	Reason string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Event, e.Reason)
}

func (e *RemoteError) Unwrap() error { return ErrRemoteRejected }
