// Package logger provides the small printf-style logging interface okssh
// components take as a dependency. User-facing reports do not go through
// it; they are written to an io.Writer by the reconcilers.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// DebugEnv is the environment variable that enables debug output.
const DebugEnv = "OKSSH_DEBUG"

// Levels as recorded by BufferLogger and tagged by env loggers.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// verbose mirrors the --verbose flag. It is read on every Debug call so
// loggers created before flag parsing still honor it.
var verbose atomic.Bool

// SetVerbose enables or disables debug output for env loggers.
func SetVerbose(v bool) {
	verbose.Store(v)
}

// DebugEnabled reports whether env loggers print debug lines.
func DebugEnabled() bool {
	return verbose.Load() || os.Getenv(DebugEnv) != ""
}

// Logger defines the interface for logging operations.
// All methods accept a format string and arguments, similar to fmt.Printf.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// envLogger writes through the standard log package. Warnings and errors are
// tagged with their level; debug lines need DebugEnabled.
type envLogger struct {
	prefix string
}

// NewEnvLogger creates a logger whose lines start with prefix, e.g. "[dconf]".
func NewEnvLogger(prefix string) Logger {
	return &envLogger{prefix: prefix}
}

func (l *envLogger) emit(tag, format string, args ...interface{}) {
	var b strings.Builder
	if l.prefix != "" {
		b.WriteString(l.prefix)
		b.WriteByte(' ')
	}
	if tag != "" {
		b.WriteString(tag)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, format, args...)
	log.Print(b.String())
}

func (l *envLogger) Debug(format string, args ...interface{}) {
	if DebugEnabled() {
		l.emit("", format, args...)
	}
}

func (l *envLogger) Info(format string, args ...interface{}) {
	l.emit("", format, args...)
}

func (l *envLogger) Warn(format string, args ...interface{}) {
	l.emit("WARN", format, args...)
}

func (l *envLogger) Error(format string, args ...interface{}) {
	l.emit("ERROR", format, args...)
}

type noopLogger struct{}

// Noop returns a logger that discards all messages.
func Noop() Logger {
	return noopLogger{}
}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

// LogMessage is one captured line.
type LogMessage struct {
	Level   string
	Message string
}

// BufferLogger records messages in memory so tests can assert on them. It is
// safe for concurrent use.
type BufferLogger struct {
	mu       sync.Mutex
	Messages []LogMessage
}

// NewBufferLogger creates an empty BufferLogger.
func NewBufferLogger() *BufferLogger {
	return &BufferLogger{}
}

func (l *BufferLogger) record(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, LogMessage{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (l *BufferLogger) Debug(format string, args ...interface{}) { l.record(LevelDebug, format, args...) }
func (l *BufferLogger) Info(format string, args ...interface{})  { l.record(LevelInfo, format, args...) }
func (l *BufferLogger) Warn(format string, args ...interface{})  { l.record(LevelWarn, format, args...) }
func (l *BufferLogger) Error(format string, args ...interface{}) { l.record(LevelError, format, args...) }

// Lines returns the messages logged at level, in order.
func (l *BufferLogger) Lines(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, m := range l.Messages {
		if m.Level == level {
			out = append(out, m.Message)
		}
	}
	return out
}

// HasLevel returns true if any message was logged at the given level.
func (l *BufferLogger) HasLevel(level string) bool {
	return len(l.Lines(level)) > 0
}

// Contains returns true if a message at the given level contains substr.
func (l *BufferLogger) Contains(level, substr string) bool {
	for _, line := range l.Lines(level) {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// Clear removes all captured messages.
func (l *BufferLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = nil
}
