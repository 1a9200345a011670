package errs

import "errors"

var (
	// ErrStaleOrUnauthorizedResult marks a result for a reservation the machine no longer holds.
	ErrStaleOrUnauthorizedResult = errors.New("stale or unauthorized result")
	// ErrPersistenceConflict is a lost optimistic-concurrency race; the operation may be retried.
	ErrPersistenceConflict = errors.New("persistence conflict")
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrInvalidArgument     = errors.New("invalid argument")
)
