package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RunLogFormat is the file name layout of per-run log files.
const RunLogFormat = "2006-01-02_15-04-05.log"

// SetupLogger configures a structured logger based on the provided configuration.
// Valid levels are: DEBUG, INFO, WARN, ERROR
// If verboseMode is true, it overrides logLevel to DEBUG.
func SetupLogger(verboseMode bool, logLevel string) *slog.Logger {
	return slog.New(newHandler(os.Stderr, verboseMode, logLevel))
}

// RunLog is a logger that writes to stderr and to a timestamped file.
// The file is what gets attached to the end-of-run notification.
type RunLog struct {
	Logger *slog.Logger
	Path   string
	file   *os.File
}

// SetupRunLogger creates dir if needed and opens a new log file named after
// the current time (see RunLogFormat). Records go to stderr and to the file.
func SetupRunLogger(dir string, verboseMode bool, logLevel string) (*RunLog, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create log directory: %w", err)
	}

	path := filepath.Join(dir, time.Now().Format(RunLogFormat))
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not create log file: %w", err)
	}

	handler := newHandler(io.MultiWriter(os.Stderr, file), verboseMode, logLevel)
	return &RunLog{Logger: slog.New(handler), Path: path, file: file}, nil
}

// Close flushes and closes the log file.
func (r *RunLog) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	if err := r.file.Sync(); err != nil {
		r.file.Close()
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	return r.file.Close()
}

func newHandler(w io.Writer, verboseMode bool, logLevel string) slog.Handler {
	level := ParseLogLevel(logLevel)
	if verboseMode {
		level = slog.LevelDebug
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

// ParseLogLevel converts a string log level to slog.Level.
// Defaults to INFO if an invalid level is provided.
func ParseLogLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogDebug logs a debug message if logger is not nil
func LogDebug(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
}

// LogInfo logs an informational message
func LogInfo(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Info(msg, args...)
	}
}

// LogWarn logs a warning message
func LogWarn(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

// LogError logs an error message
func LogError(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Error(msg, args...)
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
