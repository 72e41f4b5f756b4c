package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a LOG_LEVEL value to a Level, defaulting to info.
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

// Logger provides leveled logging throughout the application. Messages are
// printf-style and carry a "[component]" prefix by convention.
type Logger struct {
	min   Level
	info  *log.Logger
	warn  *log.Logger
	err   *log.Logger
	debug *log.Logger
}

// NewLogger creates a Logger writing info/debug/warn to stdout and errors to
// stderr.
func NewLogger(min Level) *Logger {
	return &Logger{
		min:   min,
		info:  log.New(os.Stdout, "", 0),
		warn:  log.New(os.Stdout, "", 0),
		err:   log.New(os.Stderr, "", 0),
		debug: log.New(os.Stdout, "", 0),
	}
}

// NewLoggerTo sends every level to w. Used by tests and by io.Discard sinks.
func NewLoggerTo(w io.Writer, min Level) *Logger {
	l := log.New(w, "", 0)
	return &Logger{min: min, info: l, warn: l, err: l, debug: l}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger { return NewLoggerTo(io.Discard, LevelError+1) }

func (l *Logger) timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

func (l *Logger) emit(lvl Level, out *log.Logger, tag, format string, args ...any) {
	if lvl < l.min {
		return
	}
	out.Printf("[%s] %s %s\n", l.timestamp(), tag, fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...any) {
	l.emit(LevelInfo, l.info, "\033[32mINFO\033[0m ", format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.emit(LevelWarn, l.warn, "\033[33mWARN\033[0m ", format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.emit(LevelError, l.err, "\033[31mERROR\033[0m", format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.emit(LevelDebug, l.debug, "\033[36mDEBUG\033[0m", format, args...)
}
