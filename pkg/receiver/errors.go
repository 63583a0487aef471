package receiver

import "errors"

// Package-level errors.
var (
	// ErrKeyRequired is returned when the config has no pre-shared key.
	ErrKeyRequired = errors.New("receiver: key required")

	// ErrNotInitialized is returned when starting a receiver that was not
	// created with New.
	ErrNotInitialized = errors.New("receiver: not initialized")

	// ErrAlreadyStarted is returned when Start is called on a running receiver.
	ErrAlreadyStarted = errors.New("receiver: already started")

	// ErrNotStarted is returned when stopping a receiver that never started.
	ErrNotStarted = errors.New("receiver: not started")

	// ErrAlreadyStopped is returned when Stop is called twice.
	ErrAlreadyStopped = errors.New("receiver: already stopped")

	// ErrInvalidQueueSize is returned for a negative frame queue size.
	ErrInvalidQueueSize = errors.New("receiver: invalid queue size")
)
