package refresh

import "errors"

var (
	// ErrAuthFailure aborts a run before any dataset is touched.
	ErrAuthFailure = errors.New("authentication failed")

	// ErrNotFound means no workspace or dataset matched the requested name.
	ErrNotFound = errors.New("not found")

	// ErrCancelled means the operator declined a suggested dataset name.
	ErrCancelled = errors.New("cancelled by user")
)
