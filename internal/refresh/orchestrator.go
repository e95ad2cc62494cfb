package refresh

import (
	"context"
	"time"

	"pbirefresh/internal/powerbi"
)

// Orchestrator refreshes datasets one after another and collects a record per dataset.
type Orchestrator struct {
	trigger *Trigger
	poller  *Poller
}

// NewOrchestrator wires a trigger and a poller around api.
func NewOrchestrator(api API, cfg PollConfig) *Orchestrator {
	return &Orchestrator{trigger: NewTrigger(api), poller: NewPoller(api, cfg)}
}

// Run processes datasets strictly in order. Every dataset yields exactly one
// record; a failure in one dataset never stops the others. Nothing is retried.
func (o *Orchestrator) Run(ctx context.Context, sess *Session, datasets []powerbi.Dataset) RunResult {
	result := RunResult{
		RunID:     sess.RunID,
		Workspace: sess.Workspace,
		StartedAt: time.Now(),
		Records:   make([]Record, 0, len(datasets)),
	}

	for _, ds := range datasets {
		rec := o.process(ctx, sess, ds)
		result.Records = append(result.Records, rec)

		log := sess.Logger.With("dataset", rec.Name, "status", rec.Status)
		if rec.Status.Succeeded() {
			log.Info("Refresh finished", "start", rec.Start, "end", rec.End)
		} else {
			log.Warn("Refresh did not complete", "start", rec.Start, "end", rec.End, "detail", rec.Detail)
		}

		if sess.Sink != nil {
			if err := sess.Sink.WriteRecord(sess.RunID, sess.Workspace, rec); err != nil {
				log.Warn("Could not write result row", "error", err)
			}
		}
	}

	result.FinishedAt = time.Now()
	return result
}

// process takes one dataset from Pending to a terminal record.
func (o *Orchestrator) process(ctx context.Context, sess *Session, ds powerbi.Dataset) (rec Record) {
	defer func() {
		if p := recover(); p != nil {
			sess.Logger.Error("Unexpected failure while refreshing dataset", "dataset", ds.Name, "panic", p)
			rec = failure(ds, StatusInternalError, "unexpected failure: %v", p)
		}
	}()

	sess.Logger.Info("Refreshing dataset", "dataset", ds.Name)

	if ds.ID == "" {
		return failure(ds, StatusInternalError, "dataset %q not found in workspace %q", ds.Name, sess.Workspace.Name)
	}
	if err := ctx.Err(); err != nil {
		return failure(ds, StatusInternalError, "run stopped before refresh: %v", context.Cause(ctx))
	}

	attempt, err := o.trigger.Fire(ctx, sess.Workspace.ID, ds)
	if err != nil {
		sess.Logger.Error("Refresh request failed", "dataset", ds.Name, "error", err)
		return failure(ds, StatusInternalError, "%v", err)
	}

	sess.Logger.Info("Refresh requested", "dataset", ds.Name, "httpStatus", attempt.StatusCode)
	if !attempt.Accepted() {
		sess.Logger.Warn("Refresh not accepted", "dataset", ds.Name, "body", string(attempt.Body))
		return failure(ds, StatusRequestError, "HTTP %d: %s", attempt.StatusCode, attempt.Body)
	}

	sess.Logger.Info("Waiting for refresh to finish", "dataset", ds.Name, "policy", o.poller.cfg.String())
	return o.poller.Poll(ctx, sess, ds)
}
