// Package logger provides the process-wide structured logger used by every
// TurboMCP component. It wraps log/slog behind a singleton so handlers,
// transports, and the correlator can log without threading a logger
// through every call, matching the convention of the teacher's own
// pkg/logger.
package logger

import (
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"
)

// EnvReader is the seam used to read environment variables, injected so the
// unstructured/structured selection can be unit tested without mutating the
// process environment.
type EnvReader interface {
	Getenv(name string) string
}

type osEnvReader struct{}

func (osEnvReader) Getenv(name string) string { return os.Getenv(name) }

var singleton atomic.Value // stores *slog.Logger

func init() {
	singleton.Store(newDefaultLogger())
}

func newDefaultLogger() *slog.Logger {
	handler := newHandler(unstructuredLogsWithEnv(osEnvReader{}))
	return slog.New(handler)
}

func newHandler(unstructured bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if unstructured {
		return slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.NewJSONHandler(os.Stderr, opts)
}

// unstructuredLogsWithEnv reports whether human-readable text logging
// should be used, reading UNSTRUCTURED_LOGS through the injected reader.
// Default (unset or unparsable) is true.
func unstructuredLogsWithEnv(env EnvReader) bool {
	v := env.Getenv("UNSTRUCTURED_LOGS")
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

// Get returns the process-wide logger.
func Get() *slog.Logger {
	return singleton.Load().(*slog.Logger)
}

// SetLevel installs a new singleton logger at the given minimum level,
// writing to stderr through a text handler when unstructured is true and a
// JSON handler otherwise.
func SetLevel(level slog.Level, unstructured bool) {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if unstructured {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	singleton.Store(slog.New(handler))
}

// Debug logs at debug level using the singleton logger.
func Debug(msg string, args ...any) { Get().Debug(msg, args...) }

// Info logs at info level using the singleton logger.
func Info(msg string, args ...any) { Get().Info(msg, args...) }

// Warn logs at warn level using the singleton logger.
func Warn(msg string, args ...any) { Get().Warn(msg, args...) }

// Error logs at error level using the singleton logger.
func Error(msg string, args ...any) { Get().Error(msg, args...) }
