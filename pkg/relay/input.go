package relay

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/teslashibe/go-motionbridge/internal/metrics"
	"github.com/teslashibe/go-motionbridge/internal/validation"
	"github.com/teslashibe/go-motionbridge/pkg/mapping"
	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

// HapticsEvent is a rumble report from a game controller monitor.
type HapticsEvent struct {
	Program    string `json:"program" validate:"required"`
	LargeMotor int    `json:"largeMotor" validate:"gte=0,lte=255"`
	SmallMotor int    `json:"smallMotor" validate:"gte=0,lte=255"`
}

// TimelineEvent is a scripted motion cue from a video or audio track.
type TimelineEvent struct {
	ID         int               `json:"id"`
	Motion     string            `json:"motion" validate:"required,motionname"`
	Behavior   protocol.Behavior `json:"behavior" validate:"required,behavior"`
	Scale      float64           `json:"scale" validate:"gte=0,lte=1"`
	Channel    int               `json:"channel" validate:"gte=0"`
	Fallback   int               `json:"fallback" validate:"gte=0"`
	TimeOffset float64           `json:"timeOffset" validate:"gte=0"`
	Duration   float64           `json:"duration" validate:"gte=0"`
	Magnitude  float64           `json:"magnitude" validate:"gte=0,lte=3000"`
	Color      string            `json:"color,omitempty" validate:"omitempty,hexcolor"`
	TrackIndex int               `json:"trackIndex" validate:"gte=0"`
}

// BeatEvent is emitted by the beat detector.
type BeatEvent struct {
	Beat bool `json:"beat"`
}

// GestureEvent is a classified gesture. Ready defaults to true.
type GestureEvent struct {
	Gesture string `json:"gesture" validate:"required,motionname"`
	Ready   *bool  `json:"ready,omitempty"`
}

// SignalEvent is a live force frame from a motion tracker, played
// directly by a player in live mode.
type SignalEvent struct {
	Signal []float64 `json:"signal" validate:"len=4,dive,gte=-1,lte=1"`
}

var errMalformed = errors.New("malformed event")

// decodeEvent checks required keys, decodes raw into v and validates it.
func decodeEvent(data []byte, raw map[string]json.RawMessage, v any, required ...string) error {
	var missing []string
	for _, k := range required {
		if _, ok := raw[k]; !ok {
			missing = append(missing, k)
		}
	}
	if verr := validation.MissingFields(missing...); verr != nil {
		return verr
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		return verr
	}
	return nil
}

// handleInput routes one input event. The event kind is picked by the
// first recognised key, in the order program, timeOffset, beat, gesture,
// signal. Signals go to the player as-is; the rest resolve to a motion.
func (s *Server) handleInput(c *Client, data []byte) {
	if !c.allow() {
		metrics.InputRejected.WithLabelValues("rate_limited").Inc()
		return
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		metrics.InputRejected.WithLabelValues("malformed").Inc()
		c.logger.Warn("dropping malformed input", "error", err)
		return
	}

	var (
		kind string
		res  mapping.Resolution
		err  error
	)
	switch {
	case has(raw, "program"):
		kind = "haptics"
		res, err = s.routeHaptics(c, data, raw)
	case has(raw, "timeOffset"):
		kind = "timeline"
		res, err = s.routeTimeline(data, raw)
	case has(raw, "beat"):
		kind = "beat"
		res, err = s.routeBeat(data, raw)
	case has(raw, "gesture"):
		kind = "gesture"
		res, err = s.routeGesture(data, raw)
	case has(raw, "signal"):
		kind = "signal"
		err = s.routeSignal(data, raw)
	default:
		metrics.InputEvents.WithLabelValues("unknown").Inc()
		c.logger.Debug("ignoring unrecognised input", "data", string(data))
		return
	}
	metrics.InputEvents.WithLabelValues(kind).Inc()

	if err != nil {
		s.reject(c, kind, err)
		return
	}
	if res.Forwardable() {
		s.hub.SendToPlayers(protocol.NewMotionCommand(res.Motion, res.Behavior, res.Scale))
	}
}

func has(raw map[string]json.RawMessage, key string) bool {
	_, ok := raw[key]
	return ok
}

// reject answers the client with a structured error. The connection
// stays open.
func (s *Server) reject(c *Client, kind string, err error) {
	msg := &protocol.ErrorMessage{Error: "malformed", Message: err.Error()}

	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		msg.Error = "validation"
		msg.Fields = verr.Fields()
		metrics.InputRejected.WithLabelValues("validation").Inc()
	} else {
		metrics.InputRejected.WithLabelValues("malformed").Inc()
	}

	c.logger.Info("input rejected", "kind", kind, "error", err)
	s.hub.Reply(c, msg)
}

func (s *Server) routeHaptics(c *Client, data []byte, raw map[string]json.RawMessage) (mapping.Resolution, error) {
	var ev HapticsEvent
	if err := decodeEvent(data, raw, &ev, "program", "largeMotor", "smallMotor"); err != nil {
		return mapping.Resolution{}, err
	}

	key := mapping.HapticsKey(ev.LargeMotor, ev.SmallMotor)
	res, ok := s.haptics.Resolve(ev.Program, key)
	if ok {
		return res, nil
	}

	if s.haptics.Learn(ev.Program, key) {
		metrics.HapticsLearned.Inc()
		c.logger.Info("new haptics event, saving", "program", ev.Program, "haptics", key)
		if err := s.haptics.Save(); err != nil {
			s.logger.Error("failed to save haptics mapping", "error", err)
		}
	}
	return mapping.Resolution{}, nil
}

func (s *Server) routeTimeline(data []byte, raw map[string]json.RawMessage) (mapping.Resolution, error) {
	var ev TimelineEvent
	if err := decodeEvent(data, raw, &ev, "motion", "behavior", "scale", "timeOffset"); err != nil {
		return mapping.Resolution{}, err
	}
	channel := ev.Channel
	if !has(raw, "channel") {
		channel = ev.Fallback
	}
	return mapping.Resolution{Motion: ev.Motion, Behavior: ev.Behavior, Scale: ev.Scale, Channel: channel}, nil
}

func (s *Server) routeBeat(data []byte, raw map[string]json.RawMessage) (mapping.Resolution, error) {
	var ev BeatEvent
	if err := decodeEvent(data, raw, &ev); err != nil {
		return mapping.Resolution{}, err
	}
	if !ev.Beat {
		return mapping.Resolution{}, nil
	}
	return s.audio.Resolve(), nil
}

func (s *Server) routeGesture(data []byte, raw map[string]json.RawMessage) (mapping.Resolution, error) {
	var ev GestureEvent
	if err := decodeEvent(data, raw, &ev, "gesture"); err != nil {
		return mapping.Resolution{}, err
	}
	ready := ev.Ready == nil || *ev.Ready

	current, _, _ := s.hub.State().Snapshot()
	mode, label := s.specials.NextMode(ready, current, ev.Gesture)
	if mode != "" {
		s.logger.Info("gesture mode change", "gesture", ev.Gesture, "mode", mode)
		s.hub.SendToPlayers(protocol.NewModeUpdate(mode, ""))
		return mapping.Resolution{}, nil
	}
	if label == "" {
		return mapping.Resolution{}, nil
	}

	e := s.gestures.Resolve(label)
	return mapping.Resolution{Motion: e.Motion, Behavior: e.Behavior, Scale: 1.0, Channel: e.Fallback}, nil
}

func (s *Server) routeSignal(data []byte, raw map[string]json.RawMessage) error {
	var ev SignalEvent
	if err := decodeEvent(data, raw, &ev, "signal"); err != nil {
		return err
	}
	var frame protocol.ForceFrame
	copy(frame[:], ev.Signal)
	s.hub.SendToPlayers(protocol.NewSignalCommand(frame))
	return nil
}
