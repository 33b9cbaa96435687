package relay

import (
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"golang.org/x/time/rate"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound messages; inline motions are the largest
	maxMessageSize = 512 * 1024

	// sendBuffer is the per-client outbound queue length
	sendBuffer = 256
)

// Conn is the part of a WebSocket connection the hub uses.
// *websocket.Conn from gofiber/contrib satisfies it.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetReadLimit(limit int64)
	Close() error
}

// Client is one WebSocket connection in one role.
type Client struct {
	// ID is the id the client declared with ?client=, "unknown" if none.
	ID string

	// ConnID uniquely identifies this connection in logs.
	ConnID string

	Role Role

	conn    Conn
	send    chan []byte
	limiter *rate.Limiter
	logger  *slog.Logger
}

// enqueue queues data without blocking. It reports false when the
// client's buffer is full. Callers must hold the hub lock.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// allow reports whether an inbound event fits the client's rate limit.
func (c *Client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// readPump reads messages until the connection fails and hands each one
// to onMessage.
func (c *Client) readPump(onMessage func([]byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Debug("read ended", "error", err)
			return
		}
		// Any traffic proves the peer is alive.
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if onMessage != nil {
			onMessage(data)
		}
	}
}

// writePump writes queued messages to the connection.
// Only this goroutine writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
