package player

import (
	"sync/atomic"

	"github.com/teslashibe/go-motionbridge/pkg/motion"
	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

// Slot is a single-value, last-write-wins cell shared between one writer
// goroutine and one reader goroutine. A second Put before the reader
// drains the slot replaces the first value.
type Slot[T any] struct {
	p atomic.Pointer[T]
}

// Put stores v, discarding any pending value.
func (s *Slot[T]) Put(v T) {
	s.p.Store(&v)
}

// Take returns and clears the pending value.
func (s *Slot[T]) Take() (T, bool) {
	if p := s.p.Swap(nil); p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

// Peek returns the pending value without clearing it.
func (s *Slot[T]) Peek() (T, bool) {
	if p := s.p.Load(); p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

// Clear drops the pending value.
func (s *Slot[T]) Clear() {
	s.p.Store(nil)
}

// MotionRequest is a pending motion command. Waveform is set for inline
// motion data and nil for named motions.
type MotionRequest struct {
	Name     string
	Behavior protocol.Behavior
	Scale    float64
	Waveform *motion.Waveform
}

// Mailbox carries commands from the listener to the loop. Each kind holds
// at most one pending value.
//
// Motion and MotionData are consumed once. Signal is sticky: the loop
// reuses the latest LIVE frame every tick until it is replaced, and any
// motion command clears it. Mode and Target carry configuration changes.
type Mailbox struct {
	Motion     Slot[MotionRequest]
	MotionData Slot[MotionRequest]
	Signal     Slot[protocol.ForceFrame]
	Mode       Slot[protocol.Mode]
	Target     Slot[protocol.Target]
}

// PostMotion queues a named motion and clears the live signal.
func (m *Mailbox) PostMotion(name string, b protocol.Behavior, scale float64) {
	m.Signal.Clear()
	m.Motion.Put(MotionRequest{Name: name, Behavior: b, Scale: scale})
}

// PostMotionData queues an inline waveform and clears the live signal.
func (m *Mailbox) PostMotionData(w motion.Waveform, b protocol.Behavior, scale float64) {
	m.Signal.Clear()
	m.MotionData.Put(MotionRequest{Name: w.Name, Behavior: b, Scale: scale, Waveform: &w})
}

// PostSignal replaces the live signal.
func (m *Mailbox) PostSignal(f protocol.ForceFrame) {
	m.Signal.Put(f)
}
