package refresh

import (
	"context"
	"fmt"
	"net/http"

	"pbirefresh/internal/powerbi"
)

// Attempt is the immediate answer to a refresh request.
type Attempt struct {
	Dataset    powerbi.Dataset
	StatusCode int
	Body       []byte
}

// Accepted reports whether the service queued the refresh (HTTP 202).
func (a Attempt) Accepted() bool {
	return a.StatusCode == http.StatusAccepted
}

// Trigger issues refresh requests.
type Trigger struct {
	api API
}

// NewTrigger returns a trigger calling api.
func NewTrigger(api API) *Trigger {
	return &Trigger{api: api}
}

// Fire requests a refresh of ds in workspace groupID. A non-202 answer is not
// an error; the caller records it as RequestError. Transport failures are
// returned as errors.
func (t *Trigger) Fire(ctx context.Context, groupID string, ds powerbi.Dataset) (Attempt, error) {
	status, body, err := t.api.TriggerRefresh(ctx, groupID, ds.ID)
	if err != nil {
		return Attempt{Dataset: ds}, fmt.Errorf("refresh request for %q: %w", ds.Name, err)
	}
	return Attempt{Dataset: ds, StatusCode: status, Body: body}, nil
}
