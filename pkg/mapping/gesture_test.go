package mapping

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

func newGestureMapper(t *testing.T, data string, lib library) *GestureMapper {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gesture2motion.json")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewGestureMapper(path, lib)
	if err := m.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return m
}

func TestGestureResolveDefaults(t *testing.T) {
	m := newGestureMapper(t, `{"clap":{"motion":"bump","behavior":"replace"},"punch":{}}`, library{"bump": true})

	tests := []struct {
		gesture string
		want    GestureEntry
	}{
		{"clap", GestureEntry{Motion: "bump", Behavior: protocol.BehaviorReplace, Frames: 3}},
		{"punch", GestureEntry{Motion: "none", Behavior: protocol.BehaviorDisable, Frames: 3}},
		{"unmapped", GestureEntry{Motion: "none", Behavior: protocol.BehaviorDisable, Frames: 3}},
	}
	for _, tt := range tests {
		if got := m.Resolve(tt.gesture); got != tt.want {
			t.Errorf("Resolve(%q) = %+v, want %+v", tt.gesture, got, tt.want)
		}
	}
}

func TestGestureUpdate(t *testing.T) {
	m := newGestureMapper(t, `{"clap":{"motion":"none","behavior":"disable","frames":3,"fallback":0}}`, library{"bump": true})

	err := m.Update([]GestureItem{{Gesture: "kick", Motion: "bump", Behavior: protocol.BehaviorReplace, Frames: 2}})
	if !errors.Is(err, ErrUnknownGesture) {
		t.Errorf("Update(unknown gesture) error = %v", err)
	}
	err = m.Update([]GestureItem{{Gesture: "clap", Motion: "gone", Behavior: protocol.BehaviorReplace, Frames: 2}})
	if !errors.Is(err, ErrUnknownMotion) {
		t.Errorf("Update(unknown motion) error = %v", err)
	}

	err = m.Update([]GestureItem{{Gesture: "clap", Motion: "bump", Behavior: protocol.BehaviorAppend, Frames: 5, Fallback: 1}})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := m.Save(); err != nil {
		t.Fatal(err)
	}

	items := m.Mapping()
	want := GestureItem{Gesture: "clap", Motion: "bump", Behavior: protocol.BehaviorAppend, Frames: 5, Fallback: 1}
	if len(items) != 1 || items[0] != want {
		t.Errorf("Mapping() = %+v, want [%+v]", items, want)
	}
}

func TestNextMode(t *testing.T) {
	s := DefaultSpecialGestures()

	tests := []struct {
		name      string
		ready     bool
		mode      protocol.Mode
		gesture   string
		wantMode  protocol.Mode
		wantLabel string
	}{
		{"not ready", false, protocol.ModeEvent, "stop", "", ""},
		{"stop from event", true, protocol.ModeEvent, "stop", protocol.ModeOff, ""},
		{"stop when off", true, protocol.ModeOff, "stop", "", "stop"},
		{"wave starts event", true, protocol.ModeOff, "wave", protocol.ModeEvent, ""},
		{"wave in event", true, protocol.ModeEvent, "wave", "", "wave"},
		{"arms out starts live", true, protocol.ModeEvent, "both_arms_out", protocol.ModeLive, ""},
		{"arms out in live", true, protocol.ModeLive, "both_arms_out", "", "both_arms_out"},
		{"plain gesture", true, protocol.ModeEvent, "clap", "", "clap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, label := s.NextMode(tt.ready, tt.mode, tt.gesture)
			if mode != tt.wantMode || label != tt.wantLabel {
				t.Errorf("NextMode() = (%q, %q), want (%q, %q)", mode, label, tt.wantMode, tt.wantLabel)
			}
		})
	}
}
