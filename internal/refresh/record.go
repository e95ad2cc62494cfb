package refresh

import (
	"fmt"
	"time"

	"pbirefresh/internal/powerbi"
)

// Placeholder fills Start and End when no timestamp is known.
const Placeholder = "-"

// Status is the terminal state of one dataset in a run.
type Status string

const (
	StatusCompleted     Status = "Completed"
	StatusFailed        Status = "Failed"
	StatusRequestError  Status = "RequestError"
	StatusPollError     Status = "PollError"
	StatusInternalError Status = "InternalError"
)

// Succeeded reports whether the dataset refreshed successfully.
func (s Status) Succeeded() bool {
	return s == StatusCompleted
}

// Record is the terminal outcome of one dataset. Records are values: once
// appended to a RunResult they are never modified. Detail carries the raw
// service status, the error body or the failure description.
type Record struct {
	Name      string
	DatasetID string
	Status    Status
	Start     string
	End       string
	Detail    string
}

func newRecord(ds powerbi.Dataset, status Status, start, end, detail string) Record {
	if start == "" {
		start = Placeholder
	}
	if end == "" {
		end = Placeholder
	}
	return Record{
		Name:      ds.Name,
		DatasetID: ds.ID,
		Status:    status,
		Start:     start,
		End:       end,
		Detail:    detail,
	}
}

func failure(ds powerbi.Dataset, status Status, format string, args ...any) Record {
	return newRecord(ds, status, "", "", fmt.Sprintf(format, args...))
}

// RunResult is the ordered list of records produced by one run.
type RunResult struct {
	RunID      string
	Workspace  powerbi.Group
	StartedAt  time.Time
	FinishedAt time.Time
	Records    []Record
}

// Counts returns the number of records per status.
func (r RunResult) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, rec := range r.Records {
		counts[rec.Status]++
	}
	return counts
}

// AllSucceeded reports whether every dataset completed.
func (r RunResult) AllSucceeded() bool {
	for _, rec := range r.Records {
		if !rec.Status.Succeeded() {
			return false
		}
	}
	return true
}

// Duration is the wall time of the run.
func (r RunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
