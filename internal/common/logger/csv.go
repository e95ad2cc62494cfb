package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Logger is the row-oriented sink used for the results spreadsheet.
type Logger interface {
	WriteHeader(columns []string) error
	WriteRow(row []string) error
	ShouldWriteHeader() (bool, error)
	Path() string
	Close() error
}

// CSVLogger handles CSV logging operations with periodic buffering
type CSVLogger struct {
	writer     *csv.Writer
	file       *os.File
	toolName   string    // Tool name for filename (e.g., "pbirefresh")
	action     string    // Action being performed
	rowCount   int       // Number of rows written since last flush
	lastFlush  time.Time // Time of last flush
	flushEvery int       // Flush every N rows
}

// NewCSVLogger creates a new CSV logger for the specified tool and action.
// The file lives in dir (the system temp directory when dir is empty).
// Filename pattern: _{toolName}_{action}_{date}.csv
//
// Example:
//   - _pbirefresh_refresh_2026-01-09.csv
func NewCSVLogger(dir, toolName, action string) (*CSVLogger, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	dateStr := time.Now().Format("2006-01-02")
	fileName := fmt.Sprintf("_%s_%s_%s.csv", toolName, action, dateStr)
	filePath := filepath.Join(dir, fileName)

	// Append mode: several runs on the same day share one sheet
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not create CSV log file: %w", err)
	}

	return &CSVLogger{
		writer:     csv.NewWriter(file),
		file:       file,
		toolName:   toolName,
		action:     action,
		lastFlush:  time.Now(),
		flushEvery: 10,
	}, nil
}

// WriteHeader writes a CSV header with the provided column names.
// The timestamp column is automatically prepended to the header.
func (l *CSVLogger) WriteHeader(columns []string) error {
	header := append([]string{"Timestamp"}, columns...)
	if err := l.writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	l.writer.Flush()
	return l.writer.Error()
}

// WriteRow writes a row to the CSV file with periodic buffering.
// The timestamp is automatically prepended to each row.
// Rows are flushed every N rows or every 5 seconds.
func (l *CSVLogger) WriteRow(row []string) error {
	if l.writer == nil {
		return fmt.Errorf("CSV writer is not initialized")
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fullRow := append([]string{timestamp}, row...)

	if err := l.writer.Write(fullRow); err != nil {
		return fmt.Errorf("failed to write CSV row: %w", err)
	}

	l.rowCount++

	if l.rowCount%l.flushEvery == 0 || time.Since(l.lastFlush) > 5*time.Second {
		return l.Flush()
	}
	return nil
}

// Flush writes buffered rows to disk. Call it before attaching the file.
func (l *CSVLogger) Flush() error {
	l.writer.Flush()
	l.lastFlush = time.Now()
	if err := l.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// Path returns the location of the CSV file.
func (l *CSVLogger) Path() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close closes the CSV file, ensuring all buffered data is flushed.
func (l *CSVLogger) Close() error {
	if l.writer != nil {
		l.writer.Flush()
		if err := l.writer.Error(); err != nil {
			return fmt.Errorf("error flushing CSV on close: %w", err)
		}
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// ShouldWriteHeader checks if the CSV file is new (empty) and needs a header.
func (l *CSVLogger) ShouldWriteHeader() (bool, error) {
	fileInfo, err := l.file.Stat()
	if err != nil {
		return false, fmt.Errorf("could not stat CSV file: %w", err)
	}
	return fileInfo.Size() == 0, nil
}
