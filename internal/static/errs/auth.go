package errs

import "errors"

var (
	// ErrAuthenticationFailure is returned for a bad shared secret. Callers must not reveal more.
	ErrAuthenticationFailure = errors.New("authentication failure")
	// ErrRegistrationRequired asks the executor to register (again) before fetching work.
	ErrRegistrationRequired = errors.New("registration required")
	InvalidToken            = errors.New("invalid token")
	GeneratingToken         = errors.New("error generating token")
)
