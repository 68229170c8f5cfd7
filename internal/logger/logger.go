// Package logger provides the structured, level-gated logging used across
// the detection engine.
//
// One line per entry, fixed-width columns so grep and column tooling work:
//
//	2006-01-02 15:04:05.000 | ENGINE       | scan_cycle           | INFO  | message
//
// Levels, lowest to highest: debug, info, warn, error. Entries below the
// configured minimum are dropped.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// Level is a log severity.
type Level int

// Severities, ordered lowest to highest.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger writes structured lines for one module.
type Logger struct {
	module string
	level  Level
	out    *log.Logger
}

// New creates a Logger for module, gated at the given level string.
// Unrecognized strings gate at "info".
func New(module, levelStr string) *Logger {
	return &Logger{
		module: strings.ToUpper(module),
		level:  ParseLevel(levelStr),
		out:    log.New(os.Stderr, "", 0), // full line supplied below
	}
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(levelStr string) { l.level = ParseLevel(levelStr) }

// Debug logs at DEBUG level.
func (l *Logger) Debug(action, msg string) { l.emit(LevelDebug, "DEBUG", action, msg) }

// Info logs at INFO level.
func (l *Logger) Info(action, msg string) { l.emit(LevelInfo, "INFO ", action, msg) }

// Warn logs at WARN level.
func (l *Logger) Warn(action, msg string) { l.emit(LevelWarn, "WARN ", action, msg) }

// Error logs at ERROR level.
func (l *Logger) Error(action, msg string) { l.emit(LevelError, "ERROR", action, msg) }

// Debugf logs a formatted message at DEBUG level.
func (l *Logger) Debugf(action, format string, args ...any) {
	l.Debug(action, fmt.Sprintf(format, args...))
}

// Infof logs a formatted message at INFO level.
func (l *Logger) Infof(action, format string, args ...any) {
	l.Info(action, fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at WARN level.
func (l *Logger) Warnf(action, format string, args ...any) {
	l.Warn(action, fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at ERROR level.
func (l *Logger) Errorf(action, format string, args ...any) {
	l.Error(action, fmt.Sprintf(format, args...))
}

// Fatalf logs a formatted message at ERROR level and exits.
func (l *Logger) Fatalf(action, format string, args ...any) {
	l.Error(action, fmt.Sprintf(format, args...))
	os.Exit(1)
}

func (l *Logger) emit(level Level, tag, action, msg string) {
	if level < l.level {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	l.out.Printf("%s | %-12s | %-20s | %s | %s", ts, l.module, action, tag, msg)
}

// ParseLevel converts a level string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}
