package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Logger defines the scraper logging contract.
// Implementations should support standard log levels and be safe for concurrent use.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Level is the minimum severity a StdLogger writes.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// StdLogger wraps Go's standard logger to implement the logging contract.
type StdLogger struct {
	logger *log.Logger
	level  Level
	prefix string
}

// NewStdLogger creates a new StdLogger using Go's standard logger.
func NewStdLogger() *StdLogger {
	return New(os.Stdout, LevelInfo)
}

// New creates a StdLogger writing timestamped lines to w.
func New(w io.Writer, level Level) *StdLogger {
	return &StdLogger{
		logger: log.New(w, "", log.LstdFlags),
		level:  level,
	}
}

// NewFile creates scraper_log_YYYYMMDD_HHMMSS.txt under dir and returns a
// logger writing to it. The caller closes the returned file.
func NewFile(dir string, now time.Time, level Level) (*StdLogger, *os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("scraper_log_%s.txt", now.Format("20060102_150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return New(f, level), f, nil
}

// With returns a logger that tags every line with prefix.
func (l *StdLogger) With(prefix string) *StdLogger {
	return &StdLogger{
		logger: l.logger,
		level:  l.level,
		prefix: l.prefix + prefix + " ",
	}
}

func (l *StdLogger) Info(msg string, args ...any) {
	l.write(LevelInfo, "[INFO] ", msg, args)
}

func (l *StdLogger) Warn(msg string, args ...any) {
	l.write(LevelWarn, "[WARN] ", msg, args)
}

func (l *StdLogger) Error(msg string, args ...any) {
	l.write(LevelError, "[ERROR] ", msg, args)
}

func (l *StdLogger) Debug(msg string, args ...any) {
	l.write(LevelDebug, "[DEBUG] ", msg, args)
}

func (l *StdLogger) write(level Level, tag, msg string, args []any) {
	if level < l.level {
		return
	}
	l.logger.Printf(tag+l.prefix+msg, args...)
}

type nop struct{}

func (nop) Info(string, ...any)  {}
func (nop) Warn(string, ...any)  {}
func (nop) Error(string, ...any) {}
func (nop) Debug(string, ...any) {}

// Nop discards everything.
var Nop Logger = nop{}

// Default provides a global default logger instance using Go's standard logger.
var Default Logger = NewStdLogger()
