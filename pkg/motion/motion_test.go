package motion

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

func writeMotion(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDocumentWaveform(t *testing.T) {
	doc := &Document{
		Name: "bump",
		FL:   []float64{0.1, 0.2, 0.3},
		FR:   []float64{0.4, 0.5, 0.6},
		RL:   []float64{-0.1, -0.2},
		RR:   []float64{1, 1, 1},
	}

	w := doc.Waveform()
	if w.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (shortest shape)", w.Len())
	}
	want := protocol.ForceFrame{0.2, 0.5, -0.2, 1}
	if w.Frames[1] != want {
		t.Errorf("Frames[1] = %v, want %v", w.Frames[1], want)
	}
	if w.Duration() != 20*time.Millisecond {
		t.Errorf("Duration() = %v, want 20ms", w.Duration())
	}
}

func TestParseDocument(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid", input: `{"name":"heave up","flShape":[0.5],"frShape":[0.5],"rlShape":[0.5],"rrShape":[0.5]}`},
		{name: "missing name", input: `{"flShape":[0.5],"frShape":[0.5],"rlShape":[0.5],"rrShape":[0.5]}`, wantErr: true},
		{name: "bad name", input: `{"name":"../etc","flShape":[],"frShape":[],"rlShape":[],"rrShape":[]}`, wantErr: true},
		{name: "out of range", input: `{"name":"x","flShape":[3],"frShape":[0],"rlShape":[0],"rrShape":[0]}`, wantErr: true},
		{name: "bad color", input: `{"name":"x","color":"red","flShape":[],"frShape":[],"rlShape":[],"rrShape":[]}`, wantErr: true},
		{name: "malformed", input: `{"name":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDocument() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidMotion) {
				t.Errorf("error should wrap ErrInvalidMotion: %v", err)
			}
		})
	}
}

func TestLibraryLoad(t *testing.T) {
	dir := t.TempDir()
	writeMotion(t, dir, "nod", `{"name":"nod","flShape":[0.25,0.5],"frShape":[0.25,0.5],"rlShape":[0,0],"rrShape":[0,0]}`)
	writeMotion(t, dir, "legacy", `{"flShape":[1],"frShape":[1],"rlShape":[1],"rrShape":[1]}`)

	lib := NewLibrary(dir)

	w, err := lib.Load("nod")
	if err != nil {
		t.Fatalf("Load(nod) error = %v", err)
	}
	if w.Len() != 2 || w.Frames[1] != (protocol.ForceFrame{0.5, 0.5, 0, 0}) {
		t.Errorf("Load(nod) = %+v", w)
	}
	if lib.Cached() != 1 {
		t.Errorf("Cached() = %d, want 1", lib.Cached())
	}

	if w, err := lib.Load("legacy"); err != nil || w.Len() != 1 {
		t.Errorf("Load(legacy) = %+v, %v; want 1 frame named from file stem", w, err)
	}

	for _, name := range []string{"", NoneName} {
		w, err := lib.Load(name)
		if err != nil || !w.IsEmpty() {
			t.Errorf("Load(%q) = %+v, %v; want empty without error", name, w, err)
		}
	}

	w, err = lib.Load("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrNotFound", err)
	}
	if !w.IsEmpty() {
		t.Error("Load(missing) should return an empty waveform")
	}

	if _, err := lib.Load("../nod"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(../nod) error = %v, want ErrNotFound", err)
	}
}

func TestLibraryReloadsEditedAsset(t *testing.T) {
	dir := t.TempDir()
	writeMotion(t, dir, "bump", `{"name":"bump","flShape":[0.1],"frShape":[0.1],"rlShape":[0.1],"rrShape":[0.1]}`)

	lib := NewLibrary(dir)
	w, err := lib.Load("bump")
	if err != nil || w.Len() != 1 {
		t.Fatalf("Load(bump) = %d frames, %v; want 1", w.Len(), err)
	}

	writeMotion(t, dir, "bump", `{"name":"bump","flShape":[0.1,0.2,0.3],"frShape":[0.1,0.2,0.3],"rlShape":[0,0,0],"rrShape":[0,0,0]}`)
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(filepath.Join(dir, "bump.json"), later, later); err != nil {
		t.Fatal(err)
	}

	w, err = lib.Load("bump")
	if err != nil {
		t.Fatalf("Load(bump) after edit error = %v", err)
	}
	if w.Len() != 3 || w.Frames[2] != (protocol.ForceFrame{0.3, 0.3, 0, 0}) {
		t.Errorf("Load(bump) after edit = %+v, want the 3-frame asset", w.Frames)
	}
	if lib.Cached() != 1 {
		t.Errorf("Cached() = %d, want 1", lib.Cached())
	}

	if err := os.Remove(filepath.Join(dir, "bump.json")); err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Load("bump"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(bump) after remove error = %v, want ErrNotFound", err)
	}
	if lib.Cached() != 0 {
		t.Errorf("Cached() after remove = %d, want 0", lib.Cached())
	}
}

func TestLibraryListAndInvalidate(t *testing.T) {
	dir := t.TempDir()
	writeMotion(t, dir, "b", `{"name":"b","flShape":[0],"frShape":[0],"rlShape":[0],"rrShape":[0]}`)
	writeMotion(t, dir, "a", `{"name":"a","flShape":[0],"frShape":[0],"rlShape":[0],"rrShape":[0]}`)

	lib := NewLibrary(dir)

	names, err := lib.List(true)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"none", "a", "b"}
	if len(names) != len(want) {
		t.Fatalf("List() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	if !lib.Contains("a") || lib.Contains("c") || !lib.Contains(NoneName) {
		t.Error("Contains() mismatch")
	}

	_, _ = lib.Load("a")
	_, _ = lib.Load("b")
	lib.Invalidate("a")
	if lib.Cached() != 1 {
		t.Errorf("Cached() after Invalidate(a) = %d, want 1", lib.Cached())
	}
	lib.Invalidate("")
	if lib.Cached() != 0 {
		t.Errorf("Cached() after Invalidate() = %d, want 0", lib.Cached())
	}
}

func TestSaveToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	doc := &Document{Name: "out", FL: []float64{0.1}, FR: []float64{0.2}, RL: []float64{0.3}, RR: []float64{0.4}}

	if err := SaveToFile(path, doc); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Duration != 0.01 {
		t.Errorf("Duration = %v, want 0.01", loaded.Duration)
	}
}
