package mapping

import (
	"fmt"
	"sort"
	"sync"

	"github.com/teslashibe/go-motionbridge/pkg/motion"
	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

// DefaultGestureFrames is how many consecutive classifier frames must agree
// before a gesture counts.
const DefaultGestureFrames = 3

// GestureEntry maps one gesture label to a motion.
type GestureEntry struct {
	Motion   string            `json:"motion"`
	Behavior protocol.Behavior `json:"behavior"`
	Frames   int               `json:"frames"`
	Fallback int               `json:"fallback"`
}

// GestureItem is one row of the gesture mapping as edited over HTTP.
type GestureItem struct {
	Gesture  string            `json:"gesture" validate:"required,motionname"`
	Motion   string            `json:"motion" validate:"required,motionname"`
	Behavior protocol.Behavior `json:"behavior" validate:"required,behavior"`
	Frames   int               `json:"frames" validate:"gte=1"`
	Fallback int               `json:"fallback" validate:"gte=0"`
}

// GestureMapper maps recognised gestures to motions. The set of gestures
// is fixed by the file; Update only edits existing rows.
type GestureMapper struct {
	path    string
	motions MotionChecker

	mu      sync.RWMutex
	mapping map[string]GestureEntry
}

// NewGestureMapper creates an empty mapper backed by path.
func NewGestureMapper(path string, motions MotionChecker) *GestureMapper {
	return &GestureMapper{
		path:    path,
		motions: motions,
		mapping: make(map[string]GestureEntry),
	}
}

// Load replaces the table with the file contents.
func (m *GestureMapper) Load() error {
	mapping := make(map[string]GestureEntry)
	if _, err := readJSON(m.path, &mapping); err != nil {
		return err
	}
	for g, e := range mapping {
		mapping[g] = withGestureDefaults(e)
	}
	m.mu.Lock()
	m.mapping = mapping
	m.mu.Unlock()
	return nil
}

// Save writes the table to disk.
func (m *GestureMapper) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return writeJSON(m.path, m.mapping)
}

func withGestureDefaults(e GestureEntry) GestureEntry {
	if e.Motion == "" {
		e.Motion = motion.NoneName
	}
	if e.Behavior == "" {
		e.Behavior = protocol.BehaviorDisable
	}
	if e.Frames == 0 {
		e.Frames = DefaultGestureFrames
	}
	return e
}

// Resolve maps a gesture. Unmapped gestures resolve to "none" with the
// disable behavior.
func (m *GestureMapper) Resolve(gesture string) GestureEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return withGestureDefaults(m.mapping[gesture])
}

// Mapping lists every row sorted by gesture. Unknown motions read as
// "none" and unknown behaviors as "disable".
func (m *GestureMapper) Mapping() []GestureItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	gestures := make([]string, 0, len(m.mapping))
	for g := range m.mapping {
		gestures = append(gestures, g)
	}
	sort.Strings(gestures)

	items := make([]GestureItem, 0, len(gestures))
	for _, g := range gestures {
		e := m.mapping[g]
		if !knownMotion(m.motions, e.Motion) {
			e.Motion = motion.NoneName
		}
		if !validBehavior(e.Behavior) {
			e.Behavior = protocol.BehaviorDisable
		}
		items = append(items, GestureItem{
			Gesture:  g,
			Motion:   e.Motion,
			Behavior: e.Behavior,
			Frames:   e.Frames,
			Fallback: e.Fallback,
		})
	}
	return items
}

// Update rewrites existing rows. Every row is checked first; on error
// nothing is changed.
func (m *GestureMapper) Update(items []GestureItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, it := range items {
		if _, ok := m.mapping[it.Gesture]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownGesture, it.Gesture)
		}
		if !knownMotion(m.motions, it.Motion) {
			return fmt.Errorf("%w. Gesture: %s", ErrUnknownMotion, it.Gesture)
		}
		if !validBehavior(it.Behavior) {
			return fmt.Errorf("%w. Gesture: %s", ErrUnknownBehavior, it.Gesture)
		}
	}
	for _, it := range items {
		m.mapping[it.Gesture] = GestureEntry{
			Motion:   it.Motion,
			Behavior: it.Behavior,
			Frames:   it.Frames,
			Fallback: it.Fallback,
		}
	}
	return nil
}
