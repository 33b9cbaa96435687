package relay

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

// PlayerState is the relay's view of the player: the configured mode and
// target, persisted to disk, and whether the target hardware is connected,
// which is transient.
type PlayerState struct {
	path string

	mu              sync.RWMutex
	mode            protocol.Mode
	target          protocol.Target
	targetConnected bool
}

type playerConfigFile struct {
	Mode   string `json:"mode"`
	Target string `json:"target"`
}

// NewPlayerState creates a state with mode off and target none. An empty
// path disables persistence.
func NewPlayerState(path string) *PlayerState {
	return &PlayerState{
		path:   path,
		mode:   protocol.ModeOff,
		target: protocol.TargetNone,
	}
}

// Load reads the persisted mode and target. Unknown values and a missing
// file leave the current values in place.
func (s *PlayerState) Load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read player config: %w", err)
	}

	var f playerConfigFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse player config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m, err := protocol.ParseMode(f.Mode); err == nil {
		s.mode = m
	}
	if t, err := protocol.ParseTarget(f.Target); err == nil {
		s.target = t
	}
	return nil
}

// Save writes the mode and target. The connection flag is not persisted.
func (s *PlayerState) Save() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	f := playerConfigFile{Mode: string(s.mode), Target: string(s.target)}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(f, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode player config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create player config dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write player config: %w", err)
	}
	return nil
}

// Snapshot returns the current values.
func (s *PlayerState) Snapshot() (protocol.Mode, protocol.Target, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode, s.target, s.targetConnected
}

// SetConfig records a mode and target reported by the player.
func (s *PlayerState) SetConfig(mode protocol.Mode, target protocol.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.target = target
}

// SetTargetConnected records the hardware connection state.
func (s *PlayerState) SetTargetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetConnected = connected
}
