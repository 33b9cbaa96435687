package target

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

// Gamepad forwards frames as newline-delimited JSON over TCP to the
// virtual gamepad driver.
type Gamepad struct {
	base
	addr         string
	dialTimeout  time.Duration
	writeTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder
}

// NewGamepad creates an unconnected gamepad target.
func NewGamepad(addr string, opts Options) *Gamepad {
	g := &Gamepad{
		addr:         addr,
		dialTimeout:  opts.DialTimeout,
		writeTimeout: opts.WriteTimeout,
	}
	g.init(protocol.TargetGamepad, opts.logger())
	return g
}

// Connect dials the driver.
func (g *Gamepad) Connect(ctx context.Context) bool {
	d := net.Dialer{Timeout: g.dialTimeout}

	g.logger.Info("connecting", "addr", g.addr)
	conn, err := d.DialContext(ctx, "tcp", g.addr)
	if err != nil {
		g.connectFailed(err)
		return false
	}

	g.mu.Lock()
	g.conn = conn
	g.enc = json.NewEncoder(conn)
	g.mu.Unlock()
	g.setConnected(true)
	g.logger.Info("connected", "addr", g.addr)
	return true
}

// Send writes one forces message.
func (g *Gamepad) Send(frame protocol.ForceFrame, _ float64) {
	if !g.Connected() {
		return
	}

	g.mu.Lock()
	conn, enc := g.conn, g.enc
	g.mu.Unlock()
	if conn == nil {
		return
	}

	if g.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(g.writeTimeout))
	}
	if err := enc.Encode(protocol.NewForcesMessage(frame, 0)); err != nil {
		g.sendFailed(err)
		g.Shutdown()
		return
	}
	g.sent()
}

// Shutdown closes the socket.
func (g *Gamepad) Shutdown() {
	g.mu.Lock()
	conn := g.conn
	g.conn, g.enc = nil, nil
	g.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			g.logger.Warn("shutdown error", "error", err)
		}
	}
	g.setConnected(false)
}
