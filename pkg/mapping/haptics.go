package mapping

import (
	"fmt"
	"sort"
	"sync"

	"github.com/teslashibe/go-motionbridge/pkg/motion"
	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

// HapticsEntry maps one rumble pair to a motion.
type HapticsEntry struct {
	Motion   string            `json:"motion"`
	Behavior protocol.Behavior `json:"behavior"`
	Scale    float64           `json:"scale"`
	Channel  int               `json:"channel"`
	Alias    string            `json:"alias,omitempty"`
}

// DefaultHapticsEntry is stored for a rumble pair seen for the first time.
func DefaultHapticsEntry() HapticsEntry {
	return HapticsEntry{
		Motion:   motion.NoneName,
		Behavior: protocol.BehaviorReplace,
		Scale:    0.5,
	}
}

// HapticsItem is one row of a program's mapping as edited over HTTP.
type HapticsItem struct {
	Haptics  string            `json:"haptics" validate:"required,haptics"`
	Motion   string            `json:"motion" validate:"required,motionname"`
	Behavior protocol.Behavior `json:"behavior" validate:"required,behavior"`
	Scale    float64           `json:"scale" validate:"gte=0,lte=1"`
	Channel  int               `json:"channel" validate:"gte=0"`
	Alias    string            `json:"alias,omitempty" validate:"omitempty,motionname"`
}

// HapticsProgram groups the rows of one game or program.
type HapticsProgram struct {
	Program     string        `json:"program" validate:"required"`
	HapticsList []HapticsItem `json:"hapticsList" validate:"dive"`
}

// HapticsKey formats a rumble pair as "LLL:SSS".
func HapticsKey(large, small int) string {
	return fmt.Sprintf("%03d:%03d", large, small)
}

// HapticsMapper maps (program, rumble pair) to motions and learns pairs
// it has not seen before.
type HapticsMapper struct {
	path    string
	motions MotionChecker

	mu      sync.RWMutex
	mapping map[string]map[string]HapticsEntry
}

// NewHapticsMapper creates an empty mapper backed by path.
func NewHapticsMapper(path string, motions MotionChecker) *HapticsMapper {
	return &HapticsMapper{
		path:    path,
		motions: motions,
		mapping: make(map[string]map[string]HapticsEntry),
	}
}

// Load replaces the table with the file contents. A missing file yields
// an empty table.
func (m *HapticsMapper) Load() error {
	mapping := make(map[string]map[string]HapticsEntry)
	if _, err := readJSON(m.path, &mapping); err != nil {
		return err
	}
	m.mu.Lock()
	m.mapping = mapping
	m.mu.Unlock()
	return nil
}

// Save writes the table to disk.
func (m *HapticsMapper) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return writeJSON(m.path, m.mapping)
}

// Resolve looks up a rumble pair. ok is false when the pair was never seen.
func (m *HapticsMapper) Resolve(program, key string) (Resolution, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.mapping[program][key]
	if !ok {
		return Resolution{}, false
	}
	return Resolution{Motion: e.Motion, Behavior: e.Behavior, Scale: e.Scale, Channel: e.Channel}, true
}

// Learn stores the default entry for a pair unless one already exists.
// It reports whether an entry was added.
func (m *HapticsMapper) Learn(program, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.mapping[program]
	if !ok {
		entries = make(map[string]HapticsEntry)
		m.mapping[program] = entries
	}
	if _, ok := entries[key]; ok {
		return false
	}
	entries[key] = DefaultHapticsEntry()
	return true
}

// Programs returns the mapped program names, sorted.
func (m *HapticsMapper) Programs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.mapping))
	for p := range m.mapping {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// Mapping lists every program and its rows, sorted. Rows naming a motion
// no longer in the library read as "none"; unknown behaviors read as
// "replace".
func (m *HapticsMapper) Mapping() []HapticsProgram {
	m.mu.RLock()
	defer m.mu.RUnlock()

	programs := make([]string, 0, len(m.mapping))
	for p := range m.mapping {
		programs = append(programs, p)
	}
	sort.Strings(programs)

	result := make([]HapticsProgram, 0, len(programs))
	for _, p := range programs {
		entries := m.mapping[p]
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		items := make([]HapticsItem, 0, len(keys))
		for _, k := range keys {
			e := entries[k]
			if !knownMotion(m.motions, e.Motion) {
				e.Motion = motion.NoneName
			}
			if !validBehavior(e.Behavior) {
				e.Behavior = protocol.BehaviorReplace
			}
			items = append(items, HapticsItem{
				Haptics:  k,
				Motion:   e.Motion,
				Behavior: e.Behavior,
				Scale:    e.Scale,
				Channel:  e.Channel,
				Alias:    e.Alias,
			})
		}
		result = append(result, HapticsProgram{Program: p, HapticsList: items})
	}
	return result
}

// Update rewrites existing rows of a program. Every row is checked first;
// on error nothing is changed.
func (m *HapticsMapper) Update(program string, items []HapticsItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.mapping[program]
	for _, it := range items {
		if !knownMotion(m.motions, it.Motion) {
			return fmt.Errorf("%w mapped to haptics %s", ErrUnknownMotion, it.Haptics)
		}
		if !validBehavior(it.Behavior) {
			return fmt.Errorf("%w mapped to haptics %s", ErrUnknownBehavior, it.Haptics)
		}
		if _, ok := entries[it.Haptics]; !ok {
			return fmt.Errorf("%w mapped to haptics %s", ErrUnknownHaptics, it.Haptics)
		}
	}

	for _, it := range items {
		e := entries[it.Haptics]
		e.Motion = it.Motion
		e.Behavior = it.Behavior
		e.Scale = it.Scale
		e.Channel = it.Channel
		if it.Alias != "" {
			e.Alias = it.Alias
		}
		entries[it.Haptics] = e
	}
	return nil
}

// DeleteEntry removes one row. A program left empty is removed too.
func (m *HapticsMapper) DeleteEntry(program, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.mapping[program]
	if !ok {
		return false
	}
	_, found := entries[key]
	delete(entries, key)
	if len(entries) == 0 {
		delete(m.mapping, program)
	}
	return found
}

// DeleteProgram removes a program and all its rows.
func (m *HapticsMapper) DeleteProgram(program string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.mapping[program]; !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, program)
	}
	delete(m.mapping, program)
	return nil
}
