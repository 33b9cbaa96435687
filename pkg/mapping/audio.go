package mapping

import (
	"fmt"
	"sync"

	"github.com/teslashibe/go-motionbridge/pkg/motion"
	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

// AudioEntry is the single motion played on every detected beat.
type AudioEntry struct {
	Motion   string            `json:"motion" validate:"required,motionname"`
	Behavior protocol.Behavior `json:"behavior" validate:"required,behavior"`
	Scale    float64           `json:"scale" validate:"gte=-2,lte=2"`
	Channel  int               `json:"channel" validate:"gte=0"`
}

// DefaultAudioEntry maps beats to nothing.
func DefaultAudioEntry() AudioEntry {
	return AudioEntry{
		Motion:   motion.NoneName,
		Behavior: protocol.BehaviorDisable,
		Scale:    1.0,
	}
}

// AudioMapper maps beat events to one configured motion. With flip
// enabled successive beats alternate the sign of the scale.
type AudioMapper struct {
	path    string
	motions MotionChecker

	mu    sync.Mutex
	entry AudioEntry
	flip  bool
	sign  float64
}

// NewAudioMapper creates a mapper holding the default entry.
func NewAudioMapper(path string, motions MotionChecker) *AudioMapper {
	return &AudioMapper{
		path:    path,
		motions: motions,
		entry:   DefaultAudioEntry(),
		sign:    1,
	}
}

// Load reads the entry from disk. Missing fields keep their defaults and a
// missing file yields the default entry.
func (m *AudioMapper) Load() error {
	e := DefaultAudioEntry()
	if _, err := readJSON(m.path, &e); err != nil {
		return err
	}
	m.mu.Lock()
	m.entry = e
	m.mu.Unlock()
	return nil
}

// Save writes the entry to disk.
func (m *AudioMapper) Save() error {
	m.mu.Lock()
	e := m.entry
	m.mu.Unlock()
	return writeJSON(m.path, e)
}

// Mapping returns the current entry.
func (m *AudioMapper) Mapping() AudioEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entry
}

// Update replaces the entry and saves it.
func (m *AudioMapper) Update(e AudioEntry) error {
	if !knownMotion(m.motions, e.Motion) {
		return fmt.Errorf("%w: %s", ErrUnknownMotion, e.Motion)
	}
	if !validBehavior(e.Behavior) {
		return fmt.Errorf("%w: %s", ErrUnknownBehavior, e.Behavior)
	}
	m.mu.Lock()
	m.entry = e
	m.mu.Unlock()
	return m.Save()
}

// SetFlip enables or disables sign alternation and restarts it positive.
func (m *AudioMapper) SetFlip(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flip = on
	m.sign = 1
}

// Resolve maps one beat.
func (m *AudioMapper) Resolve() Resolution {
	m.mu.Lock()
	defer m.mu.Unlock()

	scale := m.entry.Scale
	if m.flip {
		scale *= m.sign
		m.sign = -m.sign
	}
	return Resolution{
		Motion:   m.entry.Motion,
		Behavior: m.entry.Behavior,
		Scale:    scale,
		Channel:  m.entry.Channel,
	}
}
