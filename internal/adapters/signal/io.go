package signal

import (
	"time"

	"github.com/dkeye/meetclient/internal/core"
	"github.com/gorilla/websocket"
)

func (c *Conn) writePump(pingPeriod time.Duration) {
	defer func() {
		close(c.writerDone)
		_ = c.Close()
	}()
	var ping <-chan time.Time
	if pingPeriod > 0 {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}
	for {
		select {
		case <-c.done:
			c.flush()
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error().Err(err).Msg("writePump write error")
				return
			}
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Warn().Err(err).Msg("writePump ping")
				return
			}
		}
	}
}

// flush writes what is still queued, then the close frame, all within one
// writeWait.
func (c *Conn) flush() {
	deadline := time.Now().Add(writeWait)
	_ = c.conn.SetWriteDeadline(deadline)
	for {
		select {
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn().Err(err).Msg("flush on close")
				return
			}
		default:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		}
	}
}

func (c *Conn) readPump(readLimit int64, pingPeriod time.Duration) {
	defer func() {
		c.endEvents()
		_ = c.Close()
		c.logger.Info().Msg("readPump closing")
	}()

	c.conn.SetReadLimit(readLimit)
	if pingPeriod > 0 {
		pongWait := 2 * pingPeriod
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn().Err(err).Msg("readPump read error")
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *Conn) enqueue(ev core.Event) {
	c.qmu.Lock()
	c.queue = append(c.queue, ev)
	backlog := len(c.queue)
	warn := backlog >= eventBuffer && !c.saturated
	if warn {
		c.saturated = true
	} else if backlog < eventBuffer/2 {
		c.saturated = false
	}
	c.qmu.Unlock()
	if warn {
		c.logger.Warn().Int("backlog", backlog).Msg("event consumer is falling behind")
	}
	c.notify()
}

func (c *Conn) endEvents() {
	c.qmu.Lock()
	c.readEnded = true
	c.qmu.Unlock()
	c.notify()
}

func (c *Conn) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Conn) dequeue() (ev core.Event, ok, ended bool) {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if len(c.queue) == 0 {
		return core.Event{}, false, c.readEnded
	}
	ev = c.queue[0]
	c.queue[0] = core.Event{}
	c.queue = c.queue[1:]
	return ev, true, false
}

// deliverPump moves queued events to the Events channel in arrival order
// and closes it once reading has ended.
func (c *Conn) deliverPump() {
	defer close(c.events)
	for {
		ev, ok, ended := c.dequeue()
		if !ok {
			if ended {
				return
			}
			select {
			case <-c.wake:
			case <-c.done:
				return
			}
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}
