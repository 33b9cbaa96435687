// Package motion loads the named force waveforms played by the motion player.
//
// A motion is stored as a JSON document with one shape array per actuator
// corner, sampled at Frequency. Documents are decoded into a Waveform, a
// flat slice of protocol.ForceFrame that the player copies into its buffer.
package motion

import (
	"time"

	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

// Frequency is the sample rate of every stored waveform, in Hz.
const Frequency = 100

// NoneName is the reserved name of the empty motion.
const NoneName = "none"

// DefaultDir is where motion assets live unless configured otherwise.
const DefaultDir = "motions"

// Waveform is an ordered sequence of force frames sampled at Frequency.
type Waveform struct {
	Name   string
	Frames []protocol.ForceFrame
}

// Len returns the number of frames.
func (w Waveform) Len() int {
	return len(w.Frames)
}

// IsEmpty reports whether the waveform has no frames.
func (w Waveform) IsEmpty() bool {
	return len(w.Frames) == 0
}

// Duration returns the playback time of the waveform.
func (w Waveform) Duration() time.Duration {
	return time.Duration(len(w.Frames)) * time.Second / Frequency
}

// Document is the on-disk and on-wire JSON representation of a motion.
type Document struct {
	Name             string    `json:"name" validate:"required,motionname"`
	ID               string    `json:"id,omitempty"`
	ShortDisplayName string    `json:"shortDisplayName,omitempty"`
	LongDisplayName  string    `json:"longDisplayName,omitempty"`
	Color            string    `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Magnitude        float64   `json:"magnitude,omitempty" validate:"gte=0"`
	Duration         float64   `json:"duration,omitempty"` // seconds, derived on load
	FL               []float64 `json:"flShape" validate:"dive,gte=-2,lte=2"`
	FR               []float64 `json:"frShape" validate:"dive,gte=-2,lte=2"`
	RL               []float64 `json:"rlShape" validate:"dive,gte=-2,lte=2"`
	RR               []float64 `json:"rrShape" validate:"dive,gte=-2,lte=2"`
}

// Waveform zips the four corner shapes into frames. Shapes of unequal
// length are truncated to the shortest.
func (d *Document) Waveform() Waveform {
	n := min(len(d.FL), len(d.FR), len(d.RL), len(d.RR))
	frames := make([]protocol.ForceFrame, n)
	for i := range n {
		frames[i] = protocol.ForceFrame{d.FL[i], d.FR[i], d.RL[i], d.RR[i]}
	}
	return Waveform{Name: d.Name, Frames: frames}
}
