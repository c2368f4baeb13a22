// Structured logging for the flux tracer host
//
// Provides a flexible logging system with support for:
// - Log levels (DEBUG, INFO, WARN, ERROR)
// - Structured fields (key-value pairs)
// - Multiple output formats (text, JSON)
// - ANSI colors for terminal output
// - Per-component loggers with prefixes
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// DEBUG level for detailed debugging information
	DEBUG LogLevel = iota

	// INFO level for general informational messages
	INFO

	// WARN level for warning messages
	WARN

	// ERROR level for error messages
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a LogLevel
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// OutputFormat specifies the output format for log messages
type OutputFormat int

const (
	// FormatText outputs human-readable text format
	FormatText OutputFormat = iota
	// FormatJSON outputs machine-readable JSON format
	FormatJSON
)

// Fields is a map of structured logging fields
type Fields map[string]interface{}

// Logger is the main logging interface
type Logger struct {
	mu         sync.Mutex
	prefix     string
	writer     io.Writer
	level      LogLevel
	timeFormat string
	colorize   bool
	outFormat  OutputFormat
	fields     Fields
}

var (
	defaultLogger *Logger
	defaultOnce   sync.Once

	// ANSI color codes for terminal output
	ansiColors = map[LogLevel]string{
		DEBUG: "\x1b[36m", // Cyan
		INFO:  "\x1b[32m", // Green
		WARN:  "\x1b[33m", // Yellow
		ERROR: "\x1b[31m", // Red
	}
	ansiReset = "\x1b[0m"
)

// Default returns the process-wide logger, writing text to stderr at INFO.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLogger = New(os.Stderr, INFO)
	})
	return defaultLogger
}

// New creates a Logger writing to w at the given level.
func New(w io.Writer, level LogLevel) *Logger {
	return &Logger{
		writer:     w,
		level:      level,
		timeFormat: "2006-01-02 15:04:05.000",
	}
}

// Component returns a child logger with a component prefix, sharing the
// parent's sink and settings.
func (l *Logger) Component(name string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	child := &Logger{
		prefix:     name,
		writer:     l.writer,
		level:      l.level,
		timeFormat: l.timeFormat,
		colorize:   l.colorize,
		outFormat:  l.outFormat,
	}
	if len(l.fields) > 0 {
		child.fields = make(Fields, len(l.fields))
		for k, v := range l.fields {
			child.fields[k] = v
		}
	}
	return child
}

// WithFields returns a logger carrying persistent structured fields.
func (l *Logger) WithFields(fields Fields) *Logger {
	child := l.Component(l.prefix)
	if child.fields == nil {
		child.fields = make(Fields, len(fields))
	}
	for k, v := range fields {
		child.fields[k] = v
	}
	return child
}

// SetLevel changes the minimum level emitted.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetOutput redirects the log sink.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

// SetFormat selects text or JSON output.
func (l *Logger) SetFormat(f OutputFormat) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outFormat = f
}

// SetColorize toggles ANSI colors for text output.
func (l *Logger) SetColorize(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.colorize = on
}

func (l *Logger) log(level LogLevel, msg string, fields Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level || l.writer == nil {
		return
	}

	merged := fields
	if len(l.fields) > 0 {
		merged = make(Fields, len(l.fields)+len(fields))
		for k, v := range l.fields {
			merged[k] = v
		}
		for k, v := range fields {
			merged[k] = v
		}
	}

	now := time.Now()
	if l.outFormat == FormatJSON {
		entry := map[string]interface{}{
			"time":  now.Format(time.RFC3339Nano),
			"level": level.String(),
			"msg":   msg,
		}
		if l.prefix != "" {
			entry["component"] = l.prefix
		}
		for k, v := range merged {
			entry[k] = v
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return
		}
		fmt.Fprintln(l.writer, string(data))
		return
	}

	var sb strings.Builder
	sb.WriteString(now.Format(l.timeFormat))
	sb.WriteByte(' ')
	if l.colorize {
		sb.WriteString(ansiColors[level])
	}
	fmt.Fprintf(&sb, "%-5s", level.String())
	if l.colorize {
		sb.WriteString(ansiReset)
	}
	if l.prefix != "" {
		fmt.Fprintf(&sb, " [%s]", l.prefix)
	}
	sb.WriteByte(' ')
	sb.WriteString(msg)

	if len(merged) > 0 {
		keys := make([]string, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%v", k, merged[k])
		}
	}
	fmt.Fprintln(l.writer, sb.String())
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, fmt.Sprintf(format, args...), nil)
}

// Info logs at INFO level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...), nil)
}

// Warn logs at WARN level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, fmt.Sprintf(format, args...), nil)
}

// Error logs at ERROR level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, fmt.Sprintf(format, args...), nil)
}

// DebugFields logs at DEBUG level with structured fields.
func (l *Logger) DebugFields(msg string, fields Fields) { l.log(DEBUG, msg, fields) }

// InfoFields logs at INFO level with structured fields.
func (l *Logger) InfoFields(msg string, fields Fields) { l.log(INFO, msg, fields) }

// WarnFields logs at WARN level with structured fields.
func (l *Logger) WarnFields(msg string, fields Fields) { l.log(WARN, msg, fields) }

// ErrorFields logs at ERROR level with structured fields.
func (l *Logger) ErrorFields(msg string, fields Fields) { l.log(ERROR, msg, fields) }
