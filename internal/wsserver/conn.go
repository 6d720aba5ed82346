// Package wsserver is the websocket transport adapter: it upgrades an
// HTTP request to a persistent bidirectional connection and pumps
// frames to/from the event dispatcher. The TrySend/backpressure channel
// and paired readPump/writePump goroutines are the teacher's
// adapters/signal.WsSignalConn shape, carried over unchanged because
// that shape is transport plumbing, not voice-chat-specific.
package wsserver

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sync-player/server/internal/rooms"
)

var errBackpressure = errors.New("wsserver: send buffer full")

const (
	writeWait      = 5 * time.Second
	sendBufferSize = 32
)

// conn implements rooms.Connection over a gorilla/websocket connection.
type conn struct {
	ws   *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

var _ rooms.Connection = (*conn)(nil)

func newConn(ws *websocket.Conn) *conn {
	return &conn{ws: ws, send: make(chan []byte, sendBufferSize)}
}

// TrySend never blocks: if the outbound buffer is full, it reports
// backpressure and lets the caller (a room actor) decide what to do
// rather than stalling the whole room.
func (c *conn) TrySend(payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("wsserver: connection closed")
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errBackpressure
	}
}

func (c *conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	_ = c.ws.Close()
}

func (c *conn) writePump() {
	for payload := range c.send {
		if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.Error().Err(err).Str("module", "wsserver").Msg("set write deadline")
			return
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Error().Err(err).Str("module", "wsserver").Msg("write error")
			return
		}
	}
}
