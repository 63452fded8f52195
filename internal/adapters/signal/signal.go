// Package signal is the websocket client side of the meeting signaling
// protocol: correlated requests, fire-and-forget emits and server events.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/meetclient/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait         = 5 * time.Second
	defaultReadLimit  = 1 << 20
	defaultSendBuffer = 32
	eventBuffer       = 256
)

// Dialer opens signaling connections to URL.
type Dialer struct {
	URL    string
	Header http.Header
	// ReadLimit caps inbound frame size in bytes.
	ReadLimit int64
	// PingPeriod enables keepalive pings; zero disables them.
	PingPeriod time.Duration
	SendBuffer int
	WS         *websocket.Dialer
}

func (d *Dialer) Dial(ctx context.Context) (core.SignalChannel, error) {
	ws := d.WS
	if ws == nil {
		ws = websocket.DefaultDialer
	}
	conn, resp, err := ws.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", d.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}

	readLimit := d.ReadLimit
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	sendBuf := d.SendBuffer
	if sendBuf <= 0 {
		sendBuf = defaultSendBuffer
	}
	c := &Conn{
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		events:     make(chan core.Event, eventBuffer),
		wake:       make(chan struct{}, 1),
		pending:    make(map[uint64]chan ack),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		logger:     log.With().Str("module", "signal").Str("url", d.URL).Logger(),
	}
	// Pumps start before Dial returns so no server event can be missed.
	go c.writePump(d.PingPeriod)
	go c.readPump(readLimit, d.PingPeriod)
	go c.deliverPump()
	c.logger.Info().Msg("signaling connected")
	return c, nil
}

// Conn implements core.SignalChannel over one websocket.
type Conn struct {
	conn   *websocket.Conn
	send   chan []byte
	events chan core.Event
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[uint64]chan ack
	nextID  uint64

	// Events read but not yet delivered. The read pump never blocks on
	// them, so acks keep flowing while the consumer is busy.
	qmu       sync.Mutex
	queue     []core.Event
	readEnded bool
	saturated bool
	wake      chan struct{}

	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

// Request sends event and waits for its acknowledgement. out may be nil.
func (c *Conn) Request(ctx context.Context, event string, payload any, timeout time.Duration, out any) error {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	reply := make(chan ack, 1)
	c.pending[id] = reply
	c.mu.Unlock()
	defer c.forget(id)

	b, err := json.Marshal(outFrame{Event: event, ID: id, Data: payload})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if err := c.trySend(b); err != nil {
		return fmt.Errorf("%s: %w", event, err)
	}

	var expire <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}
	select {
	case a := <-reply:
		return a.decode(event, out)
	case <-expire:
		c.logger.Warn().Str("event", event).Dur("timeout", timeout).Msg("request timed out")
		return fmt.Errorf("%s after %s: %w", event, timeout, core.ErrTimeout)
	case <-c.done:
		return fmt.Errorf("%s: %w", event, core.ErrSignalClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Emit sends event without waiting for any response.
func (c *Conn) Emit(event string, payload any) error {
	b, err := json.Marshal(outFrame{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if err := c.trySend(b); err != nil {
		return fmt.Errorf("%s: %w", event, err)
	}
	return nil
}

func (c *Conn) trySend(b []byte) error {
	select {
	case <-c.done:
		return core.ErrSignalClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return core.ErrBackpressure
	}
}

// Events is closed once the connection ends.
func (c *Conn) Events() <-chan core.Event { return c.events }

// Close is idempotent. Frames already queued by Emit or Request are
// written before the close frame; in-flight requests fail with
// core.ErrSignalClosed.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		select {
		case <-c.writerDone:
		case <-time.After(2 * writeWait):
			c.logger.Warn().Msg("writer did not flush before close")
		}
		err = c.conn.Close()
		c.logger.Info().Msg("signaling closed")
	})
	return err
}
