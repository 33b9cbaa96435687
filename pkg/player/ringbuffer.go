package player

import "github.com/teslashibe/go-motionbridge/pkg/protocol"

// DefaultCapacity holds 50 s of motion at 100 Hz.
const DefaultCapacity = 5000

// RingBuffer is a fixed-capacity timeline of force frames with a parallel
// validity mask. Logical index 0 is the oldest slot; Start is the "now"
// cursor and Pointer the next free append slot.
//
// Shifting is done by advancing head rather than moving data, so Pop is
// O(1) and allocation free. Logical index i lives at (head+i) % capacity.
//
// Invariant: Start() <= Pointer() <= Capacity().
type RingBuffer struct {
	frames  []protocol.ForceFrame
	valid   []bool
	head    int
	start   int
	pointer int
}

// NewRingBuffer allocates a buffer. Capacities below 3 are raised to 3 so
// the start index is never zero.
func NewRingBuffer(capacity int) *RingBuffer {
	capacity = max(capacity, 3)
	start := capacity / 3
	return &RingBuffer{
		frames:  make([]protocol.ForceFrame, capacity),
		valid:   make([]bool, capacity),
		start:   start,
		pointer: start,
	}
}

// Capacity returns the number of slots.
func (b *RingBuffer) Capacity() int { return len(b.frames) }

// Start returns the fixed "now" cursor.
func (b *RingBuffer) Start() int { return b.start }

// Pointer returns the next free append slot.
func (b *RingBuffer) Pointer() int { return b.pointer }

// Pending returns the number of frames queued from Start to Pointer.
func (b *RingBuffer) Pending() int { return b.pointer - b.start }

func (b *RingBuffer) phys(i int) int {
	return (b.head + i) % len(b.frames)
}

// At returns the frame and validity flag at logical index i.
func (b *RingBuffer) At(i int) (protocol.ForceFrame, bool) {
	p := b.phys(i)
	return b.frames[p], b.valid[p]
}

// Reset clears every slot and rewinds the write pointer to Start.
func (b *RingBuffer) Reset() {
	clear(b.frames)
	clear(b.valid)
	b.head = 0
	b.pointer = b.start
}

// Write copies frames, multiplied by k, into logical slots [at, at+len).
// The write is rejected whole, leaving the buffer untouched, when it would
// run past capacity. On success the pointer moves to at+len.
func (b *RingBuffer) Write(at int, frames []protocol.ForceFrame, k float64) bool {
	if at < b.start || at+len(frames) > len(b.frames) {
		return false
	}
	for i, f := range frames {
		p := b.phys(at + i)
		if k != 1 {
			f = f.Scale(k)
		}
		b.frames[p] = f
		b.valid[p] = true
	}
	b.pointer = at + len(frames)
	return true
}

// Pop returns the frame at Start, then shifts the timeline left by one,
// filling the tail with an empty, invalid frame.
func (b *RingBuffer) Pop() (protocol.ForceFrame, bool) {
	f, ok := b.At(b.start)

	// The old logical 0 becomes the new tail once head advances.
	p := b.head
	b.frames[p] = protocol.ZeroFrame
	b.valid[p] = false
	b.head = (b.head + 1) % len(b.frames)

	b.pointer = max(b.pointer-1, b.start)
	return f, ok
}
