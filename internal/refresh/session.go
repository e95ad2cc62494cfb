// Package refresh runs Power BI dataset refreshes: it resolves names to IDs,
// triggers each refresh, polls it to a terminal state and collects one record
// per dataset.
package refresh

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"pbirefresh/internal/powerbi"
)

// API is the subset of the Power BI REST API used by a run.
// *powerbi.Client implements it.
type API interface {
	ListGroups(ctx context.Context) ([]powerbi.Group, error)
	ListDatasets(ctx context.Context, groupID string) ([]powerbi.Dataset, error)
	TriggerRefresh(ctx context.Context, groupID, datasetID string) (int, []byte, error)
	RefreshHistory(ctx context.Context, groupID, datasetID string) (int, []byte, error)
}

// RecordSink receives every terminal record as soon as it is produced.
type RecordSink interface {
	WriteRecord(runID string, ws powerbi.Group, rec Record) error
}

// Session carries the per-run state shared by every component: the run ID,
// the resolved workspace and where output goes. It replaces process-wide
// globals; nothing in it changes once the run starts.
type Session struct {
	RunID     string
	Workspace powerbi.Group
	Logger    *slog.Logger
	Sink      RecordSink
}

// NewSession returns a session with a fresh run ID. sink may be nil.
func NewSession(ws powerbi.Group, logger *slog.Logger, sink RecordSink) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	return &Session{
		RunID:     runID,
		Workspace: ws,
		Logger:    logger.With("run", runID),
		Sink:      sink,
	}
}
