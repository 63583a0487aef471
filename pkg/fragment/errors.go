package fragment

import "errors"

// Fragment layer errors.
var (
	// ErrMalformed is returned for frames that cannot hold a header, exceed the
	// maximum frame size, or declare a payload length they do not carry.
	ErrMalformed = errors.New("fragment: malformed frame")

	// ErrSequenceMismatch is returned for a continuation fragment that arrives
	// while idle or carries a sequence other than the one being assembled.
	ErrSequenceMismatch = errors.New("fragment: continuation sequence mismatch")

	// ErrMessageTooLarge is returned when an assembly would exceed the maximum
	// message size. The partial assembly is discarded.
	ErrMessageTooLarge = errors.New("fragment: assembled message exceeds maximum size")

	// ErrEmptyMessage is returned when splitting an empty message.
	ErrEmptyMessage = errors.New("fragment: empty message")

	// ErrInvalidFrameSize is returned when a frame size cannot hold a header
	// and at least one payload byte, or exceeds MaxExplicitFrameSize in
	// LengthExplicit mode.
	ErrInvalidFrameSize = errors.New("fragment: invalid maximum frame size")

	// ErrInvalidLengthMode is returned for an unknown LengthMode.
	ErrInvalidLengthMode = errors.New("fragment: invalid length mode")
)

// Wire constants for the radio link.
const (
	// MaxFrameSize is the radio's fixed frame size in bytes.
	MaxFrameSize = 32

	// BaseHeaderSize is Version (1) + Flags (1) + Sequence (4).
	BaseHeaderSize = 6

	// ExplicitHeaderSize adds the Length (1) byte carried in LengthExplicit mode.
	ExplicitHeaderSize = BaseHeaderSize + 1

	// MaxExplicitFrameSize is the largest frame whose payload length fits the
	// one-byte Length field.
	MaxExplicitFrameSize = ExplicitHeaderSize + 255

	// DefaultMaxMessageSize caps an assembly. The largest expected message is
	// nonce (12) + reading (24) + tag (16) = 52 bytes, so this is generous.
	DefaultMaxMessageSize = 1024

	// Version is the fragment header version written by the sender.
	Version uint8 = 0x01
)

// Flag bits.
const (
	// FlagFirst marks the first fragment of a message (bit 0).
	FlagFirst uint8 = 0x01

	// FlagLast marks the last fragment of a message (bit 1).
	FlagLast uint8 = 0x02
)
