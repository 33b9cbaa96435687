package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug")

	l.With("component", "loop").Info("tick", "n", 3, "late", true, "error", errors.New("boom"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["message"] != "tick" {
		t.Errorf("message = %v, want tick", entry["message"])
	}
	if entry["component"] != "loop" {
		t.Errorf("component = %v, want loop", entry["component"])
	}
	if entry["n"] != float64(3) {
		t.Errorf("n = %v, want 3", entry["n"])
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v, want boom", entry["error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn")

	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn should pass at warn level")
	}
}

func TestGroups(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info")

	l.WithGroup("hub").Info("broadcast", "sent", 2)

	if !strings.Contains(buf.String(), `"hub.sent":2`) {
		t.Errorf("grouped key missing: %s", buf.String())
	}
}

func TestTraceLevel(t *testing.T) {
	tests := []struct {
		level string
		want  bool
	}{
		{level: "trace", want: true},
		{level: "debug", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			New(&buf, tt.level).Log(context.Background(), LevelTrace, "sent", "tick", 7)

			if got := strings.Contains(buf.String(), `"level":"trace"`); got != tt.want {
				t.Errorf("trace record written = %v, want %v (%q)", got, tt.want, buf.String())
			}
		})
	}
}

func TestBoundAttrsAndNestedGroups(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info").
		With("component", "hub").
		WithGroup("client").
		With("role", "input")

	l.Info("registered",
		slog.Group("limit", slog.Float64("rate", 50), slog.Duration("window", 2*time.Second)),
		slog.Group("", slog.String("id", "game")),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	want := map[string]any{
		"component":         "hub",
		"client.role":       "input",
		"client.limit.rate": float64(50),
		"client.id":         "game",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
	if _, ok := entry["client.limit.window"]; !ok {
		t.Errorf("duration missing: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"trace":   "trace",
		"debug":   "debug",
		"WARN":    "warn",
		"error":   "error",
		"bogus":   "info",
		"":        "info",
		"warning": "warn",
	}
	for in, want := range tests {
		if got := ParseLevel(in).String(); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
