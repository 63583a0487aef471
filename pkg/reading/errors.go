package reading

import "errors"

// Reading errors.
var (
	// ErrSizeMismatch is returned when a plaintext is not exactly Size bytes.
	ErrSizeMismatch = errors.New("reading: plaintext size mismatch")

	// ErrInvalidLimits is returned when Min is not below Max.
	ErrInvalidLimits = errors.New("reading: minimum temperature must be below maximum")
)
