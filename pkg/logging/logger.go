// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output receives the log lines. Nil means os.Stderr.
	Output io.Writer
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// levels maps each LogLevel to its zerolog level.
var levels = map[LogLevel]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
}

// Setup configures the global zerolog logger. A nil Output writes to
// os.Stderr.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a configuration string such as LOG_LEVEL into a
// LogLevel. Matching ignores case and surrounding blanks; "warning" is
// accepted for LevelWarn. Unknown values fall back to LevelInfo.
func ParseLevel(s string) LogLevel {
	level := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if level == "warning" {
		return LevelWarn
	}
	if _, ok := levels[level]; ok {
		return level
	}
	return LevelInfo
}

func parseLevel(level LogLevel) zerolog.Level {
	return levels[ParseLevel(string(level))]
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Partition requests (resource, type, shape, item counts)
//   - Fetch cycle dispatch (generation, query key, enabled partitions)
//   - Stale cycle results dropped
//   - View state loads
//
// Info: Normal operation events
//   - Fetch cycle settled
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Partition fetch failed (other partitions still shown)
//   - Unrecognized response shape
//   - View state unavailable (defaults used)
//
// Error: Error conditions requiring attention
//   - Server failures
//   - Configuration errors
//
// Context Fields:
//   - component: Emitting package (panel-client, fetcher, controller, viewstate, panel-proxy)
//   - view: Registered view name
//   - resource: Backend resource path
//   - type: Partition type value
//   - generation: Fetch cycle generation
//   - query: Deterministic query key
//   - status_code: HTTP status code
//   - duration: Request or cycle duration
//   - error_class: Error classification (client, server, network)
