package signal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dkeye/meetclient/internal/core"
)

type outFrame struct {
	Event string `json:"event"`
	ID    uint64 `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
}

type inFrame struct {
	Event string          `json:"event"`
	Ack   *uint64         `json:"ack"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

type ack struct {
	data   json.RawMessage
	reason string
}

// decode reports an explicit error payload as a core.RemoteError and
// otherwise fills out from the ack data.
func (a ack) decode(event string, out any) error {
	if a.reason != "" {
		return &core.RemoteError{Event: event, Reason: a.reason}
	}
	if reason := dataError(a.data); reason != "" {
		return &core.RemoteError{Event: event, Reason: reason}
	}
	if out == nil || len(a.data) == 0 || bytes.Equal(a.data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(a.data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", event, err)
	}
	return nil
}

func dataError(data json.RawMessage) string {
	if len(data) == 0 || data[0] != '{' {
		return ""
	}
	var body struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	s, _ := body.Error.(string)
	return s
}

// handleFrame routes one inbound frame. Acks go straight to their
// request; events are queued for delivery.
func (c *Conn) handleFrame(data []byte) {
	var f inFrame
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Error().Err(err).Msg("bad json")
		return
	}

	if f.Ack != nil {
		c.mu.Lock()
		reply, ok := c.pending[*f.Ack]
		delete(c.pending, *f.Ack)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug().Uint64("ack", *f.Ack).Msg("late or unknown ack")
			return
		}
		reply <- ack{data: f.Data, reason: f.Error}
		return
	}

	if f.Event == "" {
		c.logger.Warn().Msg("frame without event or ack")
		return
	}
	c.enqueue(core.Event{Name: f.Event, Data: f.Data})
}
