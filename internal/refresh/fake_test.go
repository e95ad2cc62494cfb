package refresh

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"pbirefresh/internal/powerbi"
)

type response struct {
	status int
	body   []byte
	err    error
}

// fakeAPI serves canned answers. history returns the responses for a dataset
// in order and repeats the last one once exhausted.
type fakeAPI struct {
	mu sync.Mutex

	groups      []powerbi.Group
	groupsErr   error
	datasets    []powerbi.Dataset
	datasetsErr error

	trigger map[string]response
	history map[string][]response

	triggered    []string
	historyCalls map[string]int
	panicOn      string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		trigger:      make(map[string]response),
		history:      make(map[string][]response),
		historyCalls: make(map[string]int),
	}
}

func (f *fakeAPI) ListGroups(ctx context.Context) ([]powerbi.Group, error) {
	return f.groups, f.groupsErr
}

func (f *fakeAPI) ListDatasets(ctx context.Context, groupID string) ([]powerbi.Dataset, error) {
	return f.datasets, f.datasetsErr
}

func (f *fakeAPI) TriggerRefresh(ctx context.Context, groupID, datasetID string) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if datasetID == f.panicOn {
		panic("boom")
	}
	f.triggered = append(f.triggered, datasetID)
	r, ok := f.trigger[datasetID]
	if !ok {
		return 202, nil, nil
	}
	return r.status, r.body, r.err
}

func (f *fakeAPI) RefreshHistory(ctx context.Context, groupID, datasetID string) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.historyCalls[datasetID]
	f.historyCalls[datasetID] = n + 1

	rs := f.history[datasetID]
	if len(rs) == 0 {
		return 200, historyBody(powerbi.Refresh{Status: powerbi.RefreshCompleted, StartTime: "s", EndTime: "e"}), nil
	}
	if n >= len(rs) {
		n = len(rs) - 1
	}
	return rs[n].status, rs[n].body, rs[n].err
}

func historyBody(entries ...powerbi.Refresh) []byte {
	if entries == nil {
		entries = []powerbi.Refresh{}
	}
	b, err := json.Marshal(map[string]any{"value": entries})
	if err != nil {
		panic(err)
	}
	return b
}

func historyOK(entries ...powerbi.Refresh) response {
	return response{status: 200, body: historyBody(entries...)}
}

func inProgress() response {
	return historyOK(powerbi.Refresh{Status: powerbi.RefreshUnknown, StartTime: "2026-01-09T10:00:00Z"})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSession(sink RecordSink) *Session {
	return NewSession(powerbi.Group{ID: "g1", Name: "Finance"}, discardLogger(), sink)
}

type memorySink struct {
	records []Record
	err     error
}

func (m *memorySink) WriteRecord(runID string, ws powerbi.Group, rec Record) error {
	m.records = append(m.records, rec)
	return m.err
}
