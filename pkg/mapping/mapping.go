// Package mapping holds the file-backed lookup tables that turn input
// events into motion commands: haptics rumble pairs, audio beats and
// recognised gestures. It also holds the gesture mode machine.
//
// Each mapper keeps its table in memory behind a lock and reads or writes
// the whole JSON file on Load and Save.
package mapping

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/teslashibe/go-motionbridge/pkg/motion"
	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

// MotionChecker reports whether a motion exists in the library.
// *motion.Library satisfies it.
type MotionChecker interface {
	Contains(name string) bool
}

// Resolution is a fully mapped input event.
type Resolution struct {
	Motion   string
	Behavior protocol.Behavior
	Scale    float64
	Channel  int
}

// Forwardable reports whether the resolution should reach the player: a
// motion, a behavior and a non-zero scale are all required.
func (r Resolution) Forwardable() bool {
	return r.Motion != "" && r.Behavior != "" && r.Scale != 0
}

func validBehavior(b protocol.Behavior) bool {
	_, err := protocol.ParseBehavior(string(b))
	return err == nil
}

func knownMotion(mc MotionChecker, name string) bool {
	if name == motion.NoneName {
		return true
	}
	return mc != nil && mc.Contains(name)
}

// readJSON decodes path into v. A missing file, or an empty path, is
// reported as ok=false with no error.
func readJSON(path string, v any) (bool, error) {
	if path == "" {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return true, nil
}

// writeJSON replaces path with the indented encoding of v. An empty path
// keeps the table in memory only.
func writeJSON(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create mapping dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
