package telemetry

import "errors"

// Error kinds. Package-level sentinels wrap one of these.
var (
	// ErrDriver marks a hardware open/attach failure.
	ErrDriver = errors.New("driver error")

	// ErrConflict marks an operation rejected because of existing state.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks a missing session, result, user or link.
	ErrNotFound = errors.New("not found")

	// ErrStore marks a persistence read or write failure.
	ErrStore = errors.New("store error")

	// ErrInvalid marks malformed input.
	ErrInvalid = errors.New("invalid input")
)
