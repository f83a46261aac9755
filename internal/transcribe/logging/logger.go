// Package logging provides the daemon's structured, daily-rotated file logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents a log severity level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config value ("debug", "info", "error") to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a float64 field
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Logger handles structured logging
type Logger interface {
	Info(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
	Debug(msg string, fields ...Field)
}

// Config configures the logger
type Config struct {
	// LogDir is the directory where log files are stored (default: ./logs)
	LogDir string
	// Prefix is the log file prefix (e.g., "ru_daemon" produces ru_daemon-YYYY-MM-DD.log)
	Prefix string
	// RetentionDays is the number of days to retain old log files (default: 30)
	RetentionDays int
	// Component is the component name shown in brackets (e.g., "[pipeline]")
	Component string
	// MinLevel is the minimum log level to write
	MinLevel Level
	// Console, when set, receives a copy of every line written to the file.
	Console io.Writer
	// minLevelSet tracks whether MinLevel was explicitly configured
	minLevelSet bool
}

// WithMinLevel returns a copy of Config with the specified minimum log level
func (c Config) WithMinLevel(level Level) Config {
	c.MinLevel = level
	c.minLevelSet = true
	return c
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		LogDir:        "logs",
		Prefix:        "sttd",
		RetentionDays: 30,
		MinLevel:      LevelInfo,
	}
}

// sink is the rotated file shared by every component logger.
type sink struct {
	mu          sync.Mutex
	dir         string
	prefix      string
	console     io.Writer
	file        *os.File
	currentDate string
	closed      bool
	now         func() time.Time
}

// FileLogger implements Logger with daily file rotation
type FileLogger struct {
	sink      *sink
	component string
	minLevel  Level
	retention int
}

// New creates a new FileLogger with the given configuration
func New(config Config) (*FileLogger, error) {
	if config.LogDir == "" {
		config.LogDir = "logs"
	}
	if config.Prefix == "" {
		config.Prefix = "sttd"
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = 30
	}
	if !config.minLevelSet {
		config.MinLevel = LevelInfo
	}

	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logger := &FileLogger{
		sink: &sink{
			dir:     config.LogDir,
			prefix:  config.Prefix,
			console: config.Console,
			now:     time.Now,
		},
		component: config.Component,
		minLevel:  config.MinLevel,
		retention: config.RetentionDays,
	}

	logger.sink.mu.Lock()
	err := logger.sink.rotateIfNeeded()
	logger.sink.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := logger.cleanOldLogs(); err != nil {
		logger.Error("failed to clean old logs", err)
	}

	return logger, nil
}

// Info logs an informational message
func (l *FileLogger) Info(msg string, fields ...Field) {
	l.log(LevelInfo, msg, nil, fields...)
}

// Error logs an error message
func (l *FileLogger) Error(msg string, err error, fields ...Field) {
	l.log(LevelError, msg, err, fields...)
}

// Debug logs a debug message
func (l *FileLogger) Debug(msg string, fields ...Field) {
	l.log(LevelDebug, msg, nil, fields...)
}

// Close closes the underlying file. Component loggers share it, so only the
// root logger should be closed.
func (l *FileLogger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	l.sink.closed = true
	if l.sink.file != nil {
		err := l.sink.file.Close()
		l.sink.file = nil
		return err
	}
	return nil
}

// WithComponent returns a logger writing to the same file under another component name
func (l *FileLogger) WithComponent(component string) *FileLogger {
	return &FileLogger{
		sink:      l.sink,
		component: component,
		minLevel:  l.minLevel,
		retention: l.retention,
	}
}

func (l *FileLogger) log(level Level, msg string, err error, fields ...Field) {
	if level < l.minLevel {
		return
	}

	line := formatLine(l.sink.now(), level, l.component, msg, err, fields)

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if !l.sink.closed {
		if rotateErr := l.sink.rotateIfNeeded(); rotateErr != nil {
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", rotateErr)
		} else {
			l.sink.file.WriteString(line)
		}
	}
	if l.sink.console != nil {
		io.WriteString(l.sink.console, line)
	}
}

func formatLine(ts time.Time, level Level, component, msg string, err error, fields []Field) string {
	var sb strings.Builder
	sb.WriteString(ts.UTC().Format(time.RFC3339))
	sb.WriteString(" ")
	sb.WriteString(fmt.Sprintf("%-5s", level.String()))
	sb.WriteString(" ")

	if component != "" {
		sb.WriteString("[")
		sb.WriteString(component)
		sb.WriteString("] ")
	}

	sb.WriteString(msg)

	if err != nil {
		sb.WriteString(" error=")
		sb.WriteString(formatValue(err.Error()))
	}

	for _, f := range fields {
		sb.WriteString(" ")
		sb.WriteString(f.Key)
		sb.WriteString("=")
		sb.WriteString(formatValue(f.Value))
	}

	sb.WriteString("\n")
	return sb.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		if val == "" || strings.ContainsAny(val, " \t\n\"") {
			return fmt.Sprintf("%q", val)
		}
		return val
	case time.Duration:
		return val.String()
	case float64:
		return fmt.Sprintf("%.3f", val)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// rotateIfNeeded must be called with s.mu held.
func (s *sink) rotateIfNeeded() error {
	today := s.now().UTC().Format("2006-01-02")

	if s.currentDate == today && s.file != nil {
		return nil
	}

	if s.file != nil {
		s.file.Close()
		s.file = nil
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s-%s.log", s.prefix, today))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	s.file = file
	s.currentDate = today
	return nil
}

func (l *FileLogger) cleanOldLogs() error {
	entries, err := os.ReadDir(l.sink.dir)
	if err != nil {
		return fmt.Errorf("failed to read log directory: %w", err)
	}

	prefix := l.sink.prefix + "-"
	cutoff := l.sink.now().UTC().AddDate(0, 0, -l.retention)

	var toDelete []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".log") {
			continue
		}

		// prefix-YYYY-MM-DD.log
		dateStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".log")
		logDate, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}

		if logDate.Before(cutoff) {
			toDelete = append(toDelete, filepath.Join(l.sink.dir, name))
		}
	}

	sort.Strings(toDelete)

	for _, path := range toDelete {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove old log file %s: %w", path, err)
		}
	}

	return nil
}

// LogPath returns the path to the current log file
func (l *FileLogger) LogPath() string {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.file != nil {
		return l.sink.file.Name()
	}

	today := l.sink.now().UTC().Format("2006-01-02")
	return filepath.Join(l.sink.dir, fmt.Sprintf("%s-%s.log", l.sink.prefix, today))
}

// Nop discards everything. Useful for tests and for components built without a logger.
type Nop struct{}

func (Nop) Info(string, ...Field)         {}
func (Nop) Error(string, error, ...Field) {}
func (Nop) Debug(string, ...Field)        {}
