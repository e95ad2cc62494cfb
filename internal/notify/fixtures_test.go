package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pbirefresh/internal/powerbi"
	"pbirefresh/internal/refresh"
)

func sampleResult() refresh.RunResult {
	start := time.Date(2026, 1, 9, 10, 0, 0, 0, time.UTC)
	return refresh.RunResult{
		RunID:      "run-1",
		Workspace:  powerbi.Group{ID: "g1", Name: "Finance"},
		StartedAt:  start,
		FinishedAt: start.Add(2*time.Minute + 10*time.Second),
		Records: []refresh.Record{
			{Name: "Sales Report", Status: refresh.StatusCompleted, Start: "2026-01-09T10:00:00Z", End: "2026-01-09T10:01:00Z"},
			{Name: "<Inventory>", Status: refresh.StatusRequestError, Start: "-", End: "-", Detail: `HTTP 400: {"error":"bad"}`},
		},
	}
}

func writeAttachment(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
