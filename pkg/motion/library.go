package motion

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-motionbridge/internal/validation"
)

// Library is a directory of motion assets with an in-memory cache.
// A cached waveform is served only while its file keeps the size and
// modification time it had when read, so edited assets are picked up on
// the next Load. It is safe for concurrent use.
type Library struct {
	dir string

	mu    sync.RWMutex
	cache map[string]cached
}

type cached struct {
	w       Waveform
	size    int64
	modTime time.Time
}

func (c cached) matches(fi os.FileInfo) bool {
	return c.size == fi.Size() && c.modTime.Equal(fi.ModTime())
}

// NewLibrary creates a library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{
		dir:   dir,
		cache: make(map[string]cached),
	}
}

// Dir returns the asset directory.
func (l *Library) Dir() string {
	return l.dir
}

// Path returns the file path of the named asset.
func (l *Library) Path(name string) string {
	return filepath.Join(l.dir, name+".json")
}

// Load returns the named waveform. The empty name and "none" resolve to an
// empty waveform without error. A missing asset yields an empty waveform
// and an error wrapping ErrNotFound.
func (l *Library) Load(name string) (Waveform, error) {
	if name == "" || name == NoneName {
		return Waveform{Name: name}, nil
	}
	if !validation.IsMotionName(name) {
		return Waveform{Name: name}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	path := l.Path(name)
	fi, err := os.Stat(path)
	if err != nil {
		l.Invalidate(name)
		if os.IsNotExist(err) {
			return Waveform{Name: name}, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return Waveform{Name: name}, fmt.Errorf("failed to stat motion %q: %w", name, err)
	}

	l.mu.RLock()
	c, ok := l.cache[name]
	l.mu.RUnlock()
	if ok && c.matches(fi) {
		return c.w, nil
	}

	doc, err := LoadFromFile(path)
	if err != nil {
		return Waveform{Name: name}, err
	}
	w := doc.Waveform()
	w.Name = name

	l.mu.Lock()
	l.cache[name] = cached{w: w, size: fi.Size(), modTime: fi.ModTime()}
	l.mu.Unlock()
	return w, nil
}

// Contains reports whether the named asset exists on disk.
func (l *Library) Contains(name string) bool {
	if name == NoneName {
		return true
	}
	if !validation.IsMotionName(name) {
		return false
	}
	_, err := os.Stat(l.Path(name))
	return err == nil
}

// List returns asset names sorted alphabetically, optionally prefixed
// with "none".
func (l *Library) List(includeNone bool) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list motion files: %w", err)
	}

	names := make([]string, 0, len(files)+1)
	for _, f := range files {
		names = append(names, strings.TrimSuffix(filepath.Base(f), ".json"))
	}
	sort.Strings(names)

	if includeNone {
		names = append([]string{NoneName}, names...)
	}
	return names, nil
}

// Invalidate drops the cached copy of name, or every entry when name is empty.
func (l *Library) Invalidate(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if name == "" {
		l.cache = make(map[string]cached)
		return
	}
	delete(l.cache, name)
}

// Cached returns the number of cached waveforms.
func (l *Library) Cached() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cache)
}
