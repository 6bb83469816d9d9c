// Package logger provides the structured logging surface used across
// wireserve, backed by zerolog. Listeners derive per-session loggers with
// With so every entry carries the session id.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Field is one key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// Logger writes structured log entries at the usual levels. Derived loggers
// from With share the parent's output.
type Logger interface {
	// Debug logs a message at debug level.
	//
	// Parameters:
	//   - msg: The log message
	//   - fields: Optional key-value pairs for the entry
	Debug(msg string, fields ...Field)

	// Info logs a message at info level.
	//
	// Parameters:
	//   - msg: The log message
	//   - fields: Optional key-value pairs for the entry
	Info(msg string, fields ...Field)

	// Warn logs a message at warn level.
	//
	// Parameters:
	//   - msg: The log message
	//   - fields: Optional key-value pairs for the entry
	Warn(msg string, fields ...Field)

	// Error logs a message at error level.
	//
	// Parameters:
	//   - msg: The log message
	//   - fields: Optional key-value pairs for the entry
	Error(msg string, fields ...Field)

	// With returns a derived Logger that adds the given fields to every
	// entry. The receiver is unchanged.
	//
	// Parameters:
	//   - fields: Key-value pairs to attach to the derived logger
	//
	// Returns:
	//   - The derived Logger
	With(fields ...Field) Logger

	// Close releases resources held by the logger, such as an open log
	// file. Safe to call more than once.
	//
	// Returns:
	//   - An error if releasing resources fails
	Close() error
}

type zlLogger struct {
	zl     zerolog.Logger
	closer io.Closer
}

// New wraps an io.Writer in a Logger tagged with the service name.
//
// Parameters:
//   - w: Destination for log entries
//   - service: Name added as a field to every entry
//   - level: Minimum level to emit
//
// Returns:
//   - A Logger writing JSON entries to w
func New(w io.Writer, service string, level zerolog.Level) Logger {
	return &zlLogger{
		zl: zerolog.New(w).With().Str("service", service).Timestamp().Logger().Level(level),
	}
}

// NewConsole returns a Logger writing to stdout.
//
// Parameters:
//   - service: Name added as a field to every entry
//   - level: Minimum level to emit
//
// Returns:
//   - A stdout-backed Logger
func NewConsole(service string, level zerolog.Level) Logger {
	return New(os.Stdout, service, level)
}

// NewFile returns a Logger writing to stdout and to daily-rotated files
// named {service}_{date}.log inside dir, which is created if missing.
//
// Parameters:
//   - service: Name used in entries and file names
//   - dir: Directory for log files
//   - level: Minimum level to emit
//
// Returns:
//   - The Logger, or an error if the directory or first file cannot be
//     created
func NewFile(service, dir string, level zerolog.Level) (Logger, error) {
	fw, err := NewDailyWriter(service, dir)
	if err != nil {
		return nil, err
	}

	l := New(io.MultiWriter(os.Stdout, fw), service, level).(*zlLogger)
	l.closer = fw
	return l, nil
}

// Nop returns a Logger that discards everything.
//
// Returns:
//   - A no-op Logger
func Nop() Logger {
	return &zlLogger{zl: zerolog.Nop()}
}

// ParseLevel maps a config string to a zerolog level; unknown or empty
// strings fall back to info.
//
// Parameters:
//   - s: One of debug, info, warn, error (case-insensitive)
//
// Returns:
//   - The matching level, or zerolog.InfoLevel
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug implements Logger.
func (l *zlLogger) Debug(msg string, fields ...Field) {
	l.zl.Debug().Fields(fieldMap(fields)).Msg(msg)
}

// Info implements Logger.
func (l *zlLogger) Info(msg string, fields ...Field) {
	l.zl.Info().Fields(fieldMap(fields)).Msg(msg)
}

// Warn implements Logger.
func (l *zlLogger) Warn(msg string, fields ...Field) {
	l.zl.Warn().Fields(fieldMap(fields)).Msg(msg)
}

// Error implements Logger.
func (l *zlLogger) Error(msg string, fields ...Field) {
	l.zl.Error().Fields(fieldMap(fields)).Msg(msg)
}

// With implements Logger.
func (l *zlLogger) With(fields ...Field) Logger {
	return &zlLogger{
		zl: l.zl.With().Fields(fieldMap(fields)).Logger(),
	}
}

// Close implements Logger.
func (l *zlLogger) Close() error {
	if l.closer != nil {
		err := l.closer.Close()
		l.closer = nil
		return err
	}

	return nil
}

func fieldMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}

	return m
}
