// Package observability provides the engine's structured logging and
// Prometheus metrics. Loggers redact secret material before anything
// reaches an output stream.
package observability

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
)

// Logger provides structured logging for the engine's long-running
// components (scheduler, ingestion, runner). Fields typically include
// task and repository identifiers.
type Logger interface {
	// LogInfo logs an informational message with structured fields.
	LogInfo(ctx context.Context, message string, fields map[string]interface{})

	// LogWarning logs a warning message with structured fields.
	LogWarning(ctx context.Context, message string, fields map[string]interface{})

	// LogError logs an error message with structured fields.
	LogError(ctx context.Context, message string, fields map[string]interface{})
}

// Redactor removes secret material from a string before it is emitted.
type Redactor interface {
	Redact(input string) (string, error)
}

// StdLogger implements Logger on top of the standard log package. Every
// rendered line passes through the redactor so tokens and webhook secrets
// never reach the log stream.
type StdLogger struct {
	redactor Redactor
	level    Level
}

// Level filters which log calls produce output.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warning", "warn":
		return LevelWarning
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// NewStdLogger constructs a StdLogger. A nil redactor disables redaction.
func NewStdLogger(redactor Redactor, level Level) *StdLogger {
	return &StdLogger{redactor: redactor, level: level}
}

func (l *StdLogger) LogInfo(ctx context.Context, message string, fields map[string]interface{}) {
	if l.level > LevelInfo {
		return
	}
	l.emit("info", message, fields)
}

func (l *StdLogger) LogWarning(ctx context.Context, message string, fields map[string]interface{}) {
	if l.level > LevelWarning {
		return
	}
	l.emit("warning", message, fields)
}

func (l *StdLogger) LogError(ctx context.Context, message string, fields map[string]interface{}) {
	l.emit("error", message, fields)
}

func (l *StdLogger) emit(level, message string, fields map[string]interface{}) {
	line := fmt.Sprintf("%s: %s%s", level, message, formatFields(fields))
	if l.redactor != nil {
		if redacted, err := l.redactor.Redact(line); err == nil {
			line = redacted
		}
	}
	log.Print(line)
}

// formatFields renders fields in stable key order so log lines are
// comparable across runs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}

// NopLogger discards everything. Useful as a test default.
type NopLogger struct{}

func (NopLogger) LogInfo(context.Context, string, map[string]interface{})    {}
func (NopLogger) LogWarning(context.Context, string, map[string]interface{}) {}
func (NopLogger) LogError(context.Context, string, map[string]interface{})   {}
