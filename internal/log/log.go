// Package log provides structured logging for go-motionbridge.
// It exposes slog with a zerolog backend: JSON lines in production,
// a console writer in development.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// ParseLevel maps "trace", "debug", "info", "warn" and "error" to a
// zerolog level. Anything else is info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init initializes the global logger with the specified level.
// Valid levels: "trace", "debug", "info", "warn", "error"
func Init(level string) {
	once.Do(func() {
		var w io.Writer = os.Stdout

		// Use JSON in production, console in development
		if os.Getenv("GO_ENV") != "production" {
			w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
		}

		logger = New(w, level)
		slog.SetDefault(logger)
	})
}

// New builds an independent slog logger writing zerolog output to w.
func New(w io.Writer, level string) *slog.Logger {
	lvl := ParseLevel(level)
	// zerolog's global floor defaults to debug.
	if lvl < zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(lvl)
	}
	zl := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return slog.New(NewHandler(zl))
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return New(io.Discard, "error")
}
