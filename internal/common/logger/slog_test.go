package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupRunLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	rl, err := SetupRunLogger(dir, false, "INFO")
	if err != nil {
		t.Fatalf("SetupRunLogger() error = %v", err)
	}

	rl.Logger.Info("refresh requested", "dataset", "Sales Report")
	rl.Logger.Debug("hidden at INFO")
	if err := rl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if filepath.Dir(rl.Path) != dir {
		t.Errorf("log file %q not under %q", rl.Path, dir)
	}
	if !strings.HasSuffix(rl.Path, ".log") {
		t.Errorf("log file should end with .log, got %q", rl.Path)
	}

	data, err := os.ReadFile(rl.Path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "refresh requested") || !strings.Contains(content, `dataset="Sales Report"`) {
		t.Errorf("log file missing record: %q", content)
	}
	if strings.Contains(content, "hidden at INFO") {
		t.Error("debug record written at INFO level")
	}
}

func TestRunLog_CloseNil(t *testing.T) {
	var rl *RunLog
	if err := rl.Close(); err != nil {
		t.Errorf("Close() on nil RunLog = %v", err)
	}
}
