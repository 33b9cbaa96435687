package player

import (
	"testing"

	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

func TestNewRingBuffer(t *testing.T) {
	tests := []struct {
		capacity  int
		wantCap   int
		wantStart int
	}{
		{capacity: DefaultCapacity, wantCap: 5000, wantStart: 1666},
		{capacity: 9, wantCap: 9, wantStart: 3},
		{capacity: 1, wantCap: 3, wantStart: 1},
	}
	for _, tt := range tests {
		b := NewRingBuffer(tt.capacity)
		if b.Capacity() != tt.wantCap || b.Start() != tt.wantStart || b.Pointer() != tt.wantStart {
			t.Errorf("NewRingBuffer(%d) = cap %d start %d pointer %d; want cap %d start %d",
				tt.capacity, b.Capacity(), b.Start(), b.Pointer(), tt.wantCap, tt.wantStart)
		}
	}
}

func TestRingBufferPopWrapsAround(t *testing.T) {
	b := NewRingBuffer(6) // start 2
	one := protocol.ForceFrame{1, 1, 1, 1}

	// Pop far more than capacity so head wraps several times, writing one
	// frame each round.
	for i := 0; i < 25; i++ {
		if !b.Write(b.Pointer(), []protocol.ForceFrame{one.Scale(float64(i))}, 1) {
			t.Fatalf("round %d: write rejected at pointer %d", i, b.Pointer())
		}
		got, valid := b.Pop()
		if got != one.Scale(float64(i)) || !valid {
			t.Fatalf("round %d: Pop() = %v (%v)", i, got, valid)
		}
		if b.Pointer() != b.Start() {
			t.Fatalf("round %d: pointer = %d, want %d", i, b.Pointer(), b.Start())
		}
	}

	// Played frames linger behind the start index until they shift out.
	for i := 0; i < b.Start(); i++ {
		b.Pop()
	}
	for i := 0; i < b.Capacity(); i++ {
		if f, valid := b.At(i); !f.IsZero() || valid {
			t.Errorf("slot %d = %v (%v), want empty", i, f, valid)
		}
	}
}

func TestRingBufferShiftMatchesSlice(t *testing.T) {
	b := NewRingBuffer(12)
	frames := []protocol.ForceFrame{{1}, {2}, {3}, {4}, {5}}
	if !b.Write(b.Start(), frames, 1) {
		t.Fatal("write rejected")
	}

	// Reference model: slice shift-left with zero fill.
	model := make([]protocol.ForceFrame, b.Capacity())
	copy(model[b.Start():], frames)

	for step := 0; step < 8; step++ {
		b.Pop()
		model = append(model[1:], protocol.ZeroFrame)
		for i := range model {
			if got, _ := b.At(i); got != model[i] {
				t.Fatalf("step %d slot %d = %v, want %v", step, i, got, model[i])
			}
		}
	}
}

func TestRingBufferWriteRejectsWhole(t *testing.T) {
	b := NewRingBuffer(9)
	if b.Write(b.Start(), make([]protocol.ForceFrame, 7), 1) {
		t.Fatal("write of 7 frames into 6 free slots should be rejected")
	}
	if b.Pointer() != b.Start() {
		t.Errorf("pointer moved on rejected write")
	}
	for i := 0; i < b.Capacity(); i++ {
		if _, valid := b.At(i); valid {
			t.Errorf("slot %d marked valid after rejected write", i)
		}
	}
	if b.Write(b.Start()-1, []protocol.ForceFrame{{1}}, 1) {
		t.Error("write before the start index should be rejected")
	}
}
