package target

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

// Bridge forwards frames as JSON over a WebSocket to the relay's bridge
// endpoint. A failed send tears the connection down so the next tick sees
// a disconnected target instead of repeating the failure.
type Bridge struct {
	base
	url          string
	dialTimeout  time.Duration
	writeTimeout time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewBridge creates an unconnected bridge target.
func NewBridge(url string, opts Options) *Bridge {
	b := &Bridge{
		url:          url,
		dialTimeout:  opts.DialTimeout,
		writeTimeout: opts.WriteTimeout,
	}
	b.init(protocol.TargetBridge, opts.logger())
	return b
}

// Connect dials the bridge endpoint.
func (b *Bridge) Connect(ctx context.Context) bool {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: b.dialTimeout,
	}

	b.logger.Info("connecting", "url", b.url)
	conn, _, err := dialer.DialContext(ctx, b.url, nil)
	if err != nil {
		b.connectFailed(err)
		return false
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	b.setConnected(true)
	b.logger.Info("connected", "url", b.url)

	// Drain inbound frames so control messages are processed and a
	// closed peer is noticed between sends.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				b.dropped(conn, err)
				return
			}
		}
	}()
	return true
}

// dropped marks the target disconnected when conn is still the live
// connection. A read error on a connection already replaced by Shutdown
// and Connect is ignored.
func (b *Bridge) dropped(conn *websocket.Conn, err error) {
	b.mu.Lock()
	current := b.conn == conn
	b.mu.Unlock()
	if !current || !b.Connected() {
		return
	}
	b.logger.Warn("connection lost", "error", err)
	b.setConnected(false)
}

// Send writes one forces message.
func (b *Bridge) Send(frame protocol.ForceFrame, ts float64) {
	if !b.Connected() {
		return
	}

	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return
	}

	data, err := protocol.NewForcesMessage(frame, ts).Bytes()
	if err != nil {
		b.sendFailed(err)
		return
	}

	if b.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		b.sendFailed(err)
		b.Shutdown()
		return
	}
	b.sent()
}

// Shutdown closes the connection.
func (b *Bridge) Shutdown() {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(100*time.Millisecond))
		if err := conn.Close(); err != nil {
			b.logger.Warn("shutdown error", "error", err)
		}
	}
	b.setConnected(false)
}
