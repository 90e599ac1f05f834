package contracts

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	// Callers treat it as absence, not failure.
	ErrNotFound = errors.New("record not found")

	// ErrRunInProgress is returned by TryStart when another run of the
	// same job is still RUNNING. The trigger is rejected, not queued.
	ErrRunInProgress = errors.New("run already in progress")
)
