package status

import "errors"

// Status server errors.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("status: already started")

	// ErrNotStarted is returned when stopping a server that was never started.
	ErrNotStarted = errors.New("status: not started")
)
