package target

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

// Default serial settings of the servo controller sketch.
const (
	DefaultArduinoPort   = "COM5"
	DefaultArduinoBaud   = 115200
	DefaultArduinoSettle = 2 * time.Second
)

// PortOpener opens a serial device. Tests replace it with an in-memory port.
type PortOpener func(name string, baud int) (io.WriteCloser, error)

func openSerial(name string, baud int) (io.WriteCloser, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, err
	}
	return port, nil
}

// Arduino drives four hobby servos over a serial line. Each frame becomes
// one ASCII line "a1 a2 a3 a4\n" of servo angles in degrees.
//
// Serial writes can stall when the board stops reading, so frames go
// through a one-slot queue drained by a writer goroutine. The loop only
// ever replaces the pending frame; it never waits on the port.
type Arduino struct {
	base
	port   string
	baud   int
	settle time.Duration
	open   PortOpener

	mu      sync.Mutex
	dev     io.WriteCloser
	pending chan []byte
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewArduino creates an unconnected serial target.
func NewArduino(port string, baud int, opts Options) *Arduino {
	if port == "" {
		port = DefaultArduinoPort
	}
	if baud <= 0 {
		baud = DefaultArduinoBaud
	}
	a := &Arduino{
		port:   port,
		baud:   baud,
		settle: opts.ArduinoSettle,
		open:   openSerial,
	}
	a.init(protocol.TargetArduino, opts.logger())
	return a
}

// WithOpener replaces the serial opener.
func (a *Arduino) WithOpener(open PortOpener) *Arduino {
	a.open = open
	return a
}

// Connect opens the port and waits for the board to come out of reset.
func (a *Arduino) Connect(ctx context.Context) bool {
	dev, err := a.open(a.port, a.baud)
	if err != nil {
		a.connectFailed(fmt.Errorf("open %s: %w", a.port, err))
		return false
	}

	// Opening the port toggles DTR, which resets most boards.
	if a.settle > 0 {
		select {
		case <-time.After(a.settle):
		case <-ctx.Done():
			_ = dev.Close()
			a.connectFailed(ctx.Err())
			return false
		}
	}

	a.mu.Lock()
	a.dev = dev
	a.pending = make(chan []byte, 1)
	a.done = make(chan struct{})
	a.mu.Unlock()

	a.wg.Add(1)
	go a.writer(dev, a.pending, a.done)

	a.setConnected(true)
	a.logger.Info("connected", "port", a.port, "baud", a.baud)
	return true
}

func (a *Arduino) writer(dev io.Writer, pending <-chan []byte, done <-chan struct{}) {
	defer a.wg.Done()
	for {
		select {
		case <-done:
			return
		case line := <-pending:
			if _, err := dev.Write(line); err != nil {
				// The board is gone; stop queueing until the next Connect.
				a.sendFailed(err)
				a.setConnected(false)
				continue
			}
			a.sent()
		}
	}
}

// Send queues one frame, replacing any frame the writer has not taken yet.
func (a *Arduino) Send(frame protocol.ForceFrame, _ float64) {
	if !a.Connected() {
		return
	}

	a.mu.Lock()
	pending := a.pending
	a.mu.Unlock()
	if pending == nil {
		return
	}

	line := FormatAngles(frame)
	select {
	case pending <- line:
	default:
		// Drop the stale frame and queue the new one.
		select {
		case <-pending:
		default:
		}
		select {
		case pending <- line:
		default:
		}
	}
}

// Shutdown stops the writer and closes the port.
func (a *Arduino) Shutdown() {
	a.mu.Lock()
	dev, done := a.dev, a.done
	a.dev, a.done, a.pending = nil, nil, nil
	a.mu.Unlock()

	a.setConnected(false)
	if done != nil {
		close(done)
	}
	if dev != nil {
		// Closing the port unblocks a writer stuck in Write.
		if err := dev.Close(); err != nil {
			a.logger.Warn("shutdown error", "error", err)
		}
	}
	a.wg.Wait()
}

// Angles converts a frame to servo angles. Front-left and rear-left servos
// are mounted mirrored, so their axis is inverted. Components are clamped
// to [-1, 1] first, keeping every angle within [0, 90].
func Angles(frame protocol.ForceFrame) [4]int {
	c := func(v float64) float64 { return min(max(v, -1), 1) }
	return [4]int{
		int(90 - (c(frame[protocol.FrontLeft])+1)*45),
		int((c(frame[protocol.FrontRight]) + 1) * 45),
		int(90 - (c(frame[protocol.RearLeft])+1)*45),
		int((c(frame[protocol.RearRight]) + 1) * 45),
	}
}

// FormatAngles renders a frame as the serial command line.
func FormatAngles(frame protocol.ForceFrame) []byte {
	a := Angles(frame)
	buf := make([]byte, 0, 16)
	for i, v := range a {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = strconv.AppendInt(buf, int64(v), 10)
	}
	return append(buf, '\n')
}
