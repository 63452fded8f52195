// Package coretest provides in-memory implementations of the core
// interfaces for tests.
package coretest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dkeye/meetclient/internal/core"
)

// Handler answers one request; a nil response with nil error is an empty ack.
type Handler func(payload any) (any, error)

type Call struct {
	Event   string
	Payload any
	Timeout time.Duration
}

// Signal is a scripted core.SignalChannel.
type Signal struct {
	mu       sync.Mutex
	handlers map[string]Handler
	requests []Call
	emits    []Call
	events   chan core.Event
	closed   bool
	CloseErr error
}

func NewSignal() *Signal {
	return &Signal{
		handlers: make(map[string]Handler),
		events:   make(chan core.Event, 64),
	}
}

func (s *Signal) Handle(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
}

// Respond answers event with a fixed response.
func (s *Signal) Respond(event string, resp any) {
	s.Handle(event, func(any) (any, error) { return resp, nil })
}

func (s *Signal) Request(ctx context.Context, event string, payload any, timeout time.Duration, out any) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.ErrSignalClosed
	}
	s.requests = append(s.requests, Call{Event: event, Payload: payload, Timeout: timeout})
	h := s.handlers[event]
	s.mu.Unlock()

	if h == nil {
		return &core.RemoteError{Event: event, Reason: "unhandled"}
	}
	resp, err := h(payload)
	if err != nil {
		return err
	}
	if out == nil || resp == nil {
		return nil
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (s *Signal) Emit(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrSignalClosed
	}
	s.emits = append(s.emits, Call{Event: event, Payload: payload})
	return nil
}

func (s *Signal) Events() <-chan core.Event { return s.events }

// Push delivers a server event. It is dropped after Close.
func (s *Signal) Push(name string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- core.Event{Name: name, Data: b}
}

func (s *Signal) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return s.CloseErr
}

func (s *Signal) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Requests returns recorded requests, filtered by event when given.
func (s *Signal) Requests(event string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filter(s.requests, event)
}

func (s *Signal) Emits(event string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filter(s.emits, event)
}

func filter(calls []Call, event string) []Call {
	out := make([]Call, 0, len(calls))
	for _, c := range calls {
		if event == "" || c.Event == event {
			out = append(out, c)
		}
	}
	return out
}

// Dialer hands out a prepared Signal.
type Dialer struct {
	Signal *Signal
	Err    error
}

func (d *Dialer) Dial(context.Context) (core.SignalChannel, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Signal, nil
}
