// Package notify delivers the end-of-run report: an HTML table of dataset
// outcomes plus the run log and results sheet as attachments.
package notify

import (
	"context"
	"errors"
	"fmt"

	"pbirefresh/internal/refresh"
)

// DefaultSubject is used when a report has no subject of its own.
const DefaultSubject = "Relatório de Atualização Power BI"

// Report is what gets sent once a run finishes.
type Report struct {
	Subject     string
	Result      refresh.RunResult
	Attachments []string // file paths
}

func (r Report) subject() string {
	if r.Subject == "" {
		return DefaultSubject
	}
	return r.Subject
}

// Notifier delivers a report. Delivery is best effort: callers log the error
// and carry on.
type Notifier interface {
	Notify(ctx context.Context, r Report) error
}

// Multi delivers through every notifier, even when an earlier one fails.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, r Report) error {
	var errs []error
	for i, n := range m {
		if err := n.Notify(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("notifier %d (%T): %w", i, n, err))
		}
	}
	return errors.Join(errs...)
}
