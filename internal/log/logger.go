// SPDX-License-Identifier: MIT

// Package log is a small levelled logger shared by every component. The level
// is global and atomic so the audio callback path can check it without locks.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

var (
	currentLevel atomic.Uint32
	output       atomic.Pointer[stdlog.Logger]
	exit         = os.Exit
)

func init() {
	SetLevel(LevelInfo)
	SetOutput(os.Stderr)
}

// SetLevel sets the global logging level.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel returns the global logging level.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects all log output to w. Lines carry date and time with
// microseconds.
func SetOutput(w io.Writer) {
	output.Store(stdlog.New(w, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds))
}

func enabled(level LogLevel) bool {
	return level >= GetLevel()
}

func write(level LogLevel, component, msg string) {
	// Pad to keep messages aligned across level names.
	tag := fmt.Sprintf("[%s]", level)
	if len(tag) < 7 {
		tag += " "
	}
	if component != "" {
		output.Load().Printf("%s %s: %s", tag, component, msg)
		return
	}
	output.Load().Printf("%s %s", tag, msg)
}

// Logger prefixes every message with a component name. The zero value logs
// without a prefix.
type Logger struct {
	component string
}

// Named returns a Logger for component.
func Named(component string) Logger {
	return Logger{component: component}
}

// Component returns the name the logger was created with.
func (l Logger) Component() string { return l.component }

func (l Logger) Debugf(format string, v ...any) {
	if enabled(LevelDebug) {
		write(LevelDebug, l.component, fmt.Sprintf(format, v...))
	}
}

func (l Logger) Infof(format string, v ...any) {
	if enabled(LevelInfo) {
		write(LevelInfo, l.component, fmt.Sprintf(format, v...))
	}
}

func (l Logger) Warnf(format string, v ...any) {
	if enabled(LevelWarn) {
		write(LevelWarn, l.component, fmt.Sprintf(format, v...))
	}
}

func (l Logger) Errorf(format string, v ...any) {
	if enabled(LevelError) {
		write(LevelError, l.component, fmt.Sprintf(format, v...))
	}
}

// Fatalf always logs, then exits the process with status 1.
func (l Logger) Fatalf(format string, v ...any) {
	write(LevelFatal, l.component, fmt.Sprintf(format, v...))
	exit(1)
}

var std Logger

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...any) { std.Debugf(format, v...) }

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...any) { std.Infof(format, v...) }

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...any) { std.Warnf(format, v...) }

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...any) { std.Errorf(format, v...) }

// Fatalf logs a formatted fatal message and exits the application.
// Fatal messages are always logged regardless of the current level.
func Fatalf(format string, v ...any) { std.Fatalf(format, v...) }

// Debug logs a debug message if the level is appropriate.
func Debug(v ...any) {
	if enabled(LevelDebug) {
		write(LevelDebug, "", fmt.Sprint(v...))
	}
}

// Info logs an info message if the level is appropriate.
func Info(v ...any) {
	if enabled(LevelInfo) {
		write(LevelInfo, "", fmt.Sprint(v...))
	}
}

// Warn logs a warning message if the level is appropriate.
func Warn(v ...any) {
	if enabled(LevelWarn) {
		write(LevelWarn, "", fmt.Sprint(v...))
	}
}

// Error logs an error message if the level is appropriate.
func Error(v ...any) {
	if enabled(LevelError) {
		write(LevelError, "", fmt.Sprint(v...))
	}
}

// Fatal logs a fatal message and exits the application.
func Fatal(v ...any) {
	write(LevelFatal, "", fmt.Sprint(v...))
	exit(1)
}
