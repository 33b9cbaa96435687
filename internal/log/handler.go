package log

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// LevelTrace sits below debug. The player loop logs every tick at this
// level so -debug stays readable at 100 Hz.
const LevelTrace = slog.LevelDebug - 4

// Handler is a slog.Handler writing through zerolog, so sutureslog and our
// own components share one sink.
//
// Attributes bound with WithAttrs are rendered into the zerolog context
// once, not on every record. Loggers derived per component, client or
// target carry their fields for free on the hot paths.
type Handler struct {
	zl zerolog.Logger

	// prefix is the dotted group path, ending in "." when non-empty.
	prefix string
}

// NewHandler wraps a zerolog logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewHandler(zl zerolog.Logger) *Handler {
	return &Handler{zl: zl}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	zl := zerologLevel(level)
	return zl >= h.zl.GetLevel() && zl >= zerolog.GlobalLevel()
}

//nolint:gocritic // slog.Record is passed by value per slog.Handler interface
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	e := h.zl.WithLevel(zerologLevel(r.Level))
	if e == nil {
		return nil
	}
	if n := r.NumAttrs(); n > 0 {
		kv := make([]any, 0, 2*n)
		r.Attrs(func(a slog.Attr) bool {
			kv = appendAttr(kv, h.prefix, a)
			return true
		})
		e = e.Fields(kv)
	}
	e.Msg(r.Message)
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	kv := make([]any, 0, 2*len(attrs))
	for _, a := range attrs {
		kv = appendAttr(kv, h.prefix, a)
	}
	return &Handler{zl: h.zl.With().Fields(kv).Logger(), prefix: h.prefix}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{zl: h.zl, prefix: h.prefix + name + "."}
}

// appendAttr flattens a into key/value pairs for zerolog's Fields. Groups
// become dotted keys; an unnamed group is inlined. zerolog renders errors
// as their message and durations in milliseconds.
func appendAttr(kv []any, prefix string, a slog.Attr) []any {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return kv
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := prefix
		if a.Key != "" {
			sub += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			kv = appendAttr(kv, sub, ga)
		}
		return kv
	}
	return append(kv, prefix+a.Key, a.Value.Any())
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level <= LevelTrace:
		return zerolog.TraceLevel
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
