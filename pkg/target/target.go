// Package target implements the hardware backends that receive force frames
// from the player loop.
//
// Every backend honors the same contract: Connect is attempted once after
// construction, Send is best effort and must never block the 100 Hz loop
// for long, and Shutdown releases the handle. A failed connect or send is
// logged and leaves the target disconnected; it is never fatal.
package target

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-motionbridge/internal/log"
	"github.com/teslashibe/go-motionbridge/internal/metrics"
	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

// ErrNotConnected is returned by backends asked to write while disconnected.
var ErrNotConnected = errors.New("target: not connected")

// Target is a hardware backend.
type Target interface {
	// Name returns the backend kind.
	Name() protocol.Target

	// Connect opens the backend and reports whether it succeeded.
	Connect(ctx context.Context) bool

	// Send forwards one frame. ts is the Unix time the frame was generated,
	// or zero when unknown.
	Send(frame protocol.ForceFrame, ts float64)

	// Shutdown releases the backend. It is safe to call more than once.
	Shutdown()

	// Connected reports whether the backend is usable.
	Connected() bool
}

// Options configures the backends built by New.
type Options struct {
	BridgeURL     string
	GamepadAddr   string
	ArduinoPort   string
	ArduinoBaud   int
	ArduinoSettle time.Duration
	DialTimeout   time.Duration
	WriteTimeout  time.Duration
	Logger        *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.L()
}

// New constructs an unconnected backend.
func New(kind protocol.Target, opts Options) (Target, error) {
	switch kind {
	case protocol.TargetNone:
		return NewNone(), nil
	case protocol.TargetBridge:
		return NewBridge(opts.BridgeURL, opts), nil
	case protocol.TargetArduino:
		return NewArduino(opts.ArduinoPort, opts.ArduinoBaud, opts), nil
	case protocol.TargetGamepad:
		return NewGamepad(opts.GamepadAddr, opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", protocol.ErrUnknownTarget, kind)
	}
}

// base carries the connection flag and the throttled failure logging
// shared by the networked backends.
type base struct {
	kind      protocol.Target
	connected atomic.Bool
	logger    *slog.Logger
	sendLog   rate.Sometimes
	failures  atomic.Uint64
}

func (b *base) init(kind protocol.Target, logger *slog.Logger) {
	b.kind = kind
	b.logger = logger.With("component", "target", "target", string(kind))
	b.sendLog = rate.Sometimes{Interval: 5 * time.Second}
}

func (b *base) Name() protocol.Target { return b.kind }

func (b *base) Connected() bool { return b.connected.Load() }

func (b *base) setConnected(v bool) {
	b.connected.Store(v)
	metrics.SetTargetConnected(string(b.kind), v)
}

func (b *base) connectFailed(err error) {
	metrics.TargetFailures.WithLabelValues(string(b.kind), "connect").Inc()
	b.logger.Error("connection failed", "error", err)
	b.setConnected(false)
}

func (b *base) sent() {
	metrics.TargetSends.WithLabelValues(string(b.kind)).Inc()
}

// sendFailed logs at most once per interval so a dead link at 100 Hz
// does not flood the log.
func (b *base) sendFailed(err error) {
	n := b.failures.Add(1)
	metrics.TargetFailures.WithLabelValues(string(b.kind), "send").Inc()
	b.sendLog.Do(func() {
		b.logger.Warn("send failed", "error", err, "failures", n)
	})
}

// None discards every frame.
type None struct{}

// NewNone returns the no-op target.
func NewNone() *None { return &None{} }

func (*None) Name() protocol.Target             { return protocol.TargetNone }
func (*None) Connect(context.Context) bool      { return false }
func (*None) Send(protocol.ForceFrame, float64) {}
func (*None) Shutdown()                         {}
func (*None) Connected() bool                   { return false }
