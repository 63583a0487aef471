package pipeline

import (
	"errors"
	"fmt"
)

// Pipeline errors.
var (
	// ErrInvalidConfig is returned when required configuration is missing.
	ErrInvalidConfig = errors.New("pipeline: invalid configuration")
)

// Reason classifies why a frame or message was dropped.
type Reason int

const (
	// ReasonMalformed means the frame could not hold a header or declared
	// more payload than it carried.
	ReasonMalformed Reason = iota

	// ReasonSequenceMismatch means a continuation fragment did not belong to
	// the message being assembled, or arrived while idle.
	ReasonSequenceMismatch

	// ReasonOversized means the assembly would exceed the maximum message size.
	ReasonOversized

	// ReasonTooShort means the assembled message cannot hold a nonce and tag.
	ReasonTooShort

	// ReasonAuthenticationFailed means the tag did not verify.
	ReasonAuthenticationFailed

	// ReasonReplayOrStale means the sequence is not above the high-water mark.
	ReasonReplayOrStale

	// ReasonSizeMismatch means the plaintext is not a reading.
	ReasonSizeMismatch
)

// Reasons lists every rejection reason, in pipeline order.
var Reasons = []Reason{
	ReasonMalformed,
	ReasonSequenceMismatch,
	ReasonOversized,
	ReasonTooShort,
	ReasonAuthenticationFailed,
	ReasonReplayOrStale,
	ReasonSizeMismatch,
}

// String returns the label used in logs and metrics.
func (r Reason) String() string {
	switch r {
	case ReasonMalformed:
		return "malformed"
	case ReasonSequenceMismatch:
		return "sequence_mismatch"
	case ReasonOversized:
		return "oversized"
	case ReasonTooShort:
		return "too_short"
	case ReasonAuthenticationFailed:
		return "authentication_failed"
	case ReasonReplayOrStale:
		return "replay_or_stale"
	case ReasonSizeMismatch:
		return "size_mismatch"
	default:
		return "unknown"
	}
}

// Rejection is returned for every dropped frame or message.
// Err is the underlying package error and is reachable with errors.Is.
type Rejection struct {
	Reason Reason

	// Sequence is the message sequence number, when the frame header could
	// be parsed. HasSequence is false for malformed frames.
	Sequence    uint32
	HasSequence bool

	Err error
}

func (r *Rejection) Error() string {
	if r.HasSequence {
		return fmt.Sprintf("pipeline: seq %d rejected (%s): %v", r.Sequence, r.Reason, r.Err)
	}
	return fmt.Sprintf("pipeline: frame rejected (%s): %v", r.Reason, r.Err)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}
