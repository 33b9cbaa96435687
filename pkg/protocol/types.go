package protocol

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Sentinel errors for malformed values arriving over the wire.
var (
	// ErrUnknownBehavior is returned when a behavior string is not one of Behaviors.
	ErrUnknownBehavior = errors.New("protocol: unknown behavior")

	// ErrUnknownMode is returned when a mode string is not one of Modes.
	ErrUnknownMode = errors.New("protocol: unknown mode")

	// ErrUnknownTarget is returned when a target string is not one of Targets.
	ErrUnknownTarget = errors.New("protocol: unknown target")

	// ErrBadFrame is returned when a force frame does not carry exactly
	// four components.
	ErrBadFrame = errors.New("protocol: force frame needs 4 components")
)

// Corner indices into a ForceFrame.
const (
	FrontLeft = iota
	FrontRight
	RearLeft
	RearRight
)

// ForceFrame is one normalized actuator command for the four corners
// (fl, fr, rl, rr), each nominally in [-1, 1].
type ForceFrame [4]float64

// ZeroFrame is the idle frame.
var ZeroFrame = ForceFrame{}

// Scale returns the frame with every component multiplied by s.
func (f ForceFrame) Scale(s float64) ForceFrame {
	return ForceFrame{f[0] * s, f[1] * s, f[2] * s, f[3] * s}
}

// UnmarshalJSON decodes a four-element array. Short or long arrays are
// rejected rather than zero-filled or truncated.
func (f *ForceFrame) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != len(f) {
		return fmt.Errorf("%w: got %d", ErrBadFrame, len(v))
	}
	copy(f[:], v)
	return nil
}

// IsZero reports whether all components are zero.
func (f ForceFrame) IsZero() bool {
	return f == ZeroFrame
}

// Behavior is the merge policy for a new motion relative to the one playing.
type Behavior string

const (
	BehaviorDisable Behavior = "disable"
	BehaviorInherit Behavior = "inherit"
	BehaviorReplace Behavior = "replace"
	BehaviorAppend  Behavior = "append"
	BehaviorClear   Behavior = "clear"
	BehaviorSingle  Behavior = "single"
)

// Behaviors lists every valid behavior in wire order.
var Behaviors = []Behavior{
	BehaviorDisable,
	BehaviorInherit,
	BehaviorReplace,
	BehaviorAppend,
	BehaviorClear,
	BehaviorSingle,
}

// ParseBehavior converts a wire string into a Behavior.
func ParseBehavior(s string) (Behavior, error) {
	for _, b := range Behaviors {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBehavior, s)
}

// Mode is the player playback state.
type Mode string

const (
	ModeOff   Mode = "off"
	ModeEvent Mode = "event"
	ModeLive  Mode = "live"
)

// Modes lists every valid mode.
var Modes = []Mode{ModeOff, ModeEvent, ModeLive}

// ParseMode converts a wire string into a Mode.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Target names the hardware backend receiving force frames.
type Target string

const (
	TargetNone    Target = "none"
	TargetBridge  Target = "bridge"
	TargetArduino Target = "arduino"
	TargetGamepad Target = "gamepad"
)

// Targets lists every valid target.
var Targets = []Target{TargetNone, TargetBridge, TargetArduino, TargetGamepad}

// ParseTarget converts a wire string into a Target.
func ParseTarget(s string) (Target, error) {
	for _, t := range Targets {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTarget, s)
}
