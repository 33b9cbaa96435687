package mapping

import "github.com/teslashibe/go-motionbridge/pkg/protocol"

// SpecialGestures names the gestures that switch the player mode instead
// of playing a motion.
type SpecialGestures struct {
	StartLive  string `json:"start_live"`
	Stop       string `json:"stop"`
	StartEvent string `json:"start_event"`
}

// DefaultSpecialGestures returns the stock labels.
func DefaultSpecialGestures() SpecialGestures {
	return SpecialGestures{
		StartLive:  "both_arms_out",
		Stop:       "stop",
		StartEvent: "wave",
	}
}

// NextMode decides what a gesture does given the current player mode.
//
// When the user is not ready nothing happens and both results are empty.
// A special gesture that changes the mode returns the new mode. Any other
// gesture, including a special one for the mode already active, is
// returned as a label to map to a motion.
func (s SpecialGestures) NextMode(ready bool, current protocol.Mode, gesture string) (protocol.Mode, string) {
	if !ready {
		return "", ""
	}
	switch {
	case current != protocol.ModeOff && gesture == s.Stop:
		return protocol.ModeOff, ""
	case current != protocol.ModeEvent && gesture == s.StartEvent:
		return protocol.ModeEvent, ""
	case current != protocol.ModeLive && gesture == s.StartLive:
		return protocol.ModeLive, ""
	}
	return "", gesture
}
