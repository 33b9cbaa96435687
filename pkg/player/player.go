// Package player turns discrete motion commands into a continuous stream of
// force frames.
//
// MotionPlayer owns a RingBuffer and a three-state mode machine. It is not
// safe for concurrent use: exactly one goroutine (the Loop) drives it.
// Commands cross from the network goroutine through a Mailbox.
package player

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/teslashibe/go-motionbridge/internal/log"
	"github.com/teslashibe/go-motionbridge/pkg/motion"
	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

// Loader resolves a motion name to its waveform.
type Loader interface {
	Load(name string) (motion.Waveform, error)
}

// Outcome reports what a motion command did to the buffer.
type Outcome int

const (
	OutcomeIgnored  Outcome = iota // empty waveform or unknown name
	OutcomeApplied                 // frames written or buffer cleared
	OutcomeRejected                // write would overflow capacity
	OutcomeDisabled                // "disable" behavior
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeRejected:
		return "rejected"
	case OutcomeDisabled:
		return "disabled"
	default:
		return "ignored"
	}
}

// MotionPlayer is the playback state machine.
type MotionPlayer struct {
	mode     protocol.Mode
	buf      *RingBuffer
	loader   Loader
	current  string
	latest   protocol.ForceFrame
	accurate bool
	logger   *slog.Logger
}

// New creates a player in OFF mode with the given buffer capacity.
// A nil logger uses the package default.
func New(capacity int, loader Loader, logger *slog.Logger) *MotionPlayer {
	if logger == nil {
		logger = log.L()
	}
	return &MotionPlayer{
		mode:    protocol.ModeOff,
		buf:     NewRingBuffer(capacity),
		loader:  loader,
		current: motion.NoneName,
		logger:  logger.With("component", "player"),
	}
}

// Mode returns the current playback mode.
func (p *MotionPlayer) Mode() protocol.Mode { return p.mode }

// Current returns the name of the most recently handled motion.
func (p *MotionPlayer) Current() string { return p.current }

// Accurate reports whether the last frame came from real data.
func (p *MotionPlayer) Accurate() bool { return p.accurate }

// Latest returns the last frame produced by Update.
func (p *MotionPlayer) Latest() protocol.ForceFrame { return p.latest }

// Buffer exposes the ring buffer for inspection.
func (p *MotionPlayer) Buffer() *RingBuffer { return p.buf }

// SetMode switches mode and always resets the buffer.
func (p *MotionPlayer) SetMode(m protocol.Mode) error {
	if _, err := protocol.ParseMode(string(m)); err != nil {
		return err
	}
	p.mode = m
	p.buf.Reset()
	return nil
}

// HandleMotion loads the named waveform and merges it into the buffer.
func (p *MotionPlayer) HandleMotion(name string, b protocol.Behavior, scale float64) (Outcome, error) {
	var w motion.Waveform
	if p.loader != nil {
		var err error
		w, err = p.loader.Load(name)
		if err != nil {
			p.logger.Debug("motion not loaded", "motion", name, "error", err)
		}
	}
	return p.merge(name, w.Frames, b, scale)
}

// HandleMotionData merges an inline waveform into the buffer. Waveforms
// without a name are ignored.
func (p *MotionPlayer) HandleMotionData(w motion.Waveform, b protocol.Behavior, scale float64) (Outcome, error) {
	if w.Name == "" {
		return OutcomeIgnored, nil
	}
	return p.merge(w.Name, w.Frames, b, scale)
}

// resolve rewrites single and inherit into the concrete behavior.
func (p *MotionPlayer) resolve(name string, b protocol.Behavior) protocol.Behavior {
	switch b {
	case protocol.BehaviorSingle, protocol.BehaviorInherit:
		if name == p.current {
			return protocol.BehaviorAppend
		}
		return protocol.BehaviorReplace
	}
	return b
}

func (p *MotionPlayer) merge(name string, frames []protocol.ForceFrame, b protocol.Behavior, scale float64) (Outcome, error) {
	if len(frames) == 0 {
		return OutcomeIgnored, nil
	}

	// Attenuation only: scales outside (0, 1] in magnitude play as stored.
	k := 1.0
	if a := math.Abs(scale); a > 0 && a <= 1 {
		k = scale
	}

	var outcome Outcome
	switch resolved := p.resolve(name, b); resolved {
	case protocol.BehaviorReplace:
		p.buf.Reset()
		outcome = OutcomeApplied
		if !p.buf.Write(p.buf.Start(), frames, k) {
			outcome = OutcomeRejected
		}
	case protocol.BehaviorAppend:
		outcome = OutcomeApplied
		if !p.buf.Write(p.buf.Pointer(), frames, k) {
			outcome = OutcomeRejected
		}
	case protocol.BehaviorClear:
		p.buf.Reset()
		outcome = OutcomeApplied
	case protocol.BehaviorDisable:
		outcome = OutcomeDisabled
	default:
		return OutcomeIgnored, fmt.Errorf("%w: %q", protocol.ErrUnknownBehavior, b)
	}

	p.logger.Debug("motion handled",
		"motion", name,
		"behavior", b,
		"frames", len(frames),
		"outcome", outcome,
		"pointer", p.buf.Pointer(),
	)
	p.current = name
	return outcome, nil
}

// Update produces the next frame. In LIVE mode a nil signal yields the
// zero frame.
func (p *MotionPlayer) Update(signal *protocol.ForceFrame) protocol.ForceFrame {
	switch p.mode {
	case protocol.ModeEvent:
		p.latest, p.accurate = p.buf.Pop()
	case protocol.ModeLive:
		if signal != nil {
			p.latest, p.accurate = *signal, true
		} else {
			p.latest, p.accurate = protocol.ZeroFrame, false
		}
	default:
		p.latest, p.accurate = protocol.ZeroFrame, false
	}
	return p.latest
}
