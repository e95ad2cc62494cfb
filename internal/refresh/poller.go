package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pbirefresh/internal/powerbi"
)

// DefaultPollInterval is the pause between two refresh history queries.
const DefaultPollInterval = 10 * time.Second

// PollConfig controls the polling loop.
// A zero Timeout polls until the refresh reaches a terminal state.
type PollConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Poller watches the most recent refresh of a dataset until it ends.
// It assumes nobody else refreshes the same dataset meanwhile: only the
// newest history entry is inspected.
type Poller struct {
	api  API
	cfg  PollConfig
	wait func(ctx context.Context, d time.Duration) error
}

// NewPoller returns a poller. A non-positive interval falls back to DefaultPollInterval.
func NewPoller(api API, cfg PollConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	return &Poller{api: api, cfg: cfg, wait: sleep}
}

// Poll queries the refresh history of ds until one of:
//   - the newest entry is Completed or Failed (Cancelled and Disabled count as Failed);
//   - the history query answers with a non-200 status (PollError);
//   - the configured timeout elapses or ctx is cancelled (PollError).
//
// It always returns a terminal record.
func (p *Poller) Poll(ctx context.Context, sess *Session, ds powerbi.Dataset) Record {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	log := sess.Logger.With("dataset", ds.Name)
	for polls := 1; ; polls++ {
		status, body, err := p.api.RefreshHistory(ctx, sess.Workspace.ID, ds.ID)
		if err != nil {
			if ctx.Err() != nil {
				return p.stopped(ctx, ds)
			}
			return failure(ds, StatusInternalError, "refresh history query: %v", err)
		}
		if status != http.StatusOK {
			log.Error("Refresh history query failed", "status", status, "body", string(body))
			return failure(ds, StatusPollError, "HTTP %d: %s", status, body)
		}

		entries, err := powerbi.ParseRefreshHistory(body)
		if err != nil {
			return failure(ds, StatusInternalError, "%v", err)
		}
		if len(entries) == 0 {
			return failure(ds, StatusInternalError, "refresh history is empty")
		}

		latest := entries[0]
		log.Info("Refresh status", "status", latest.Status, "start", latest.StartTime, "poll", polls)

		switch latest.Status {
		case powerbi.RefreshCompleted:
			return newRecord(ds, StatusCompleted, latest.StartTime, latest.EndTime, "")
		case powerbi.RefreshFailed:
			return newRecord(ds, StatusFailed, latest.StartTime, latest.EndTime, latest.ServiceExceptionJSON)
		case powerbi.RefreshCancelled, powerbi.RefreshDisabled:
			return newRecord(ds, StatusFailed, latest.StartTime, latest.EndTime, "service status: "+latest.Status)
		}

		if err := p.wait(ctx, p.cfg.Interval); err != nil {
			return p.stopped(ctx, ds)
		}
	}
}

func (p *Poller) stopped(ctx context.Context, ds powerbi.Dataset) Record {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && p.cfg.Timeout > 0 {
		return failure(ds, StatusPollError, "polling timed out after %s", p.cfg.Timeout)
	}
	return failure(ds, StatusPollError, "polling stopped: %v", context.Cause(ctx))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// String describes the polling policy for logs.
func (c PollConfig) String() string {
	if c.Timeout <= 0 {
		return fmt.Sprintf("every %s, no timeout", c.Interval)
	}
	return fmt.Sprintf("every %s, timeout %s", c.Interval, c.Timeout)
}
