package fragment

import (
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

// LengthMode selects how the meaningful payload length of a frame is found.
// The radio always delivers frames padded to their maximum size, so the
// receiver cannot use the frame length.
type LengthMode int

const (
	// LengthExplicit carries a length byte after the sequence number.
	// This is the default and is exact for any payload.
	LengthExplicit LengthMode = iota

	// LengthTrailingZero infers the length from the last non-zero payload
	// byte, for wire compatibility with senders that omit the length byte.
	// Payloads that legitimately end in zero bytes are truncated.
	LengthTrailingZero
)

// String returns the config name of the mode.
func (m LengthMode) String() string {
	switch m {
	case LengthExplicit:
		return "explicit"
	case LengthTrailingZero:
		return "trailing-zero"
	default:
		return fmt.Sprintf("LengthMode(%d)", int(m))
	}
}

// IsValid returns true if the mode is known.
func (m LengthMode) IsValid() bool {
	return m == LengthExplicit || m == LengthTrailingZero
}

// HeaderSize returns the header length for the mode.
func (m LengthMode) HeaderSize() int {
	if m == LengthExplicit {
		return ExplicitHeaderSize
	}
	return BaseHeaderSize
}

// CheckFrameSize returns ErrInvalidFrameSize if frameSize cannot hold a header
// and one payload byte, or, in LengthExplicit mode, carries more payload than
// the Length byte can describe.
func (m LengthMode) CheckFrameSize(frameSize int) error {
	if frameSize <= m.HeaderSize() {
		return fmt.Errorf("%w: %d bytes cannot hold a %d byte header", ErrInvalidFrameSize, frameSize, m.HeaderSize())
	}
	if m == LengthExplicit && frameSize > MaxExplicitFrameSize {
		return fmt.Errorf("%w: %d bytes exceeds %d for explicit length", ErrInvalidFrameSize, frameSize, MaxExplicitFrameSize)
	}
	return nil
}

// ParseLengthMode parses a config name produced by LengthMode.String.
func ParseLengthMode(s string) (LengthMode, error) {
	switch s {
	case "explicit", "":
		return LengthExplicit, nil
	case "trailing-zero":
		return LengthTrailingZero, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLengthMode, s)
	}
}

// Header is the fixed prefix of every radio frame.
//
// Wire layout (LengthExplicit):
//
//	[0]   Version
//	[1]   Flags (bit 0 first, bit 1 last)
//	[2:6] Sequence (big-endian), identifies the message, not the fragment
//	[6]   Length of the payload that follows
//
// LengthTrailingZero omits byte 6.
type Header struct {
	Version  uint8
	Flags    uint8
	Sequence uint32
	Length   uint8
}

// IsFirst reports whether the first-fragment flag is set.
func (h Header) IsFirst() bool {
	return h.Flags&FlagFirst != 0
}

// IsLast reports whether the last-fragment flag is set.
func (h Header) IsLast() bool {
	return h.Flags&FlagLast != 0
}

// Fragment is a decoded radio frame.
// Payload aliases the frame passed to Decode.
type Fragment struct {
	Header  Header
	Payload []byte
}

// Decode parses one radio frame.
// Returns ErrMalformed if the frame is shorter than the header, longer than
// maxFrameSize, or declares more payload than it carries.
func Decode(frame []byte, mode LengthMode, maxFrameSize int) (*Fragment, error) {
	if !mode.IsValid() {
		return nil, ErrInvalidLengthMode
	}
	if maxFrameSize <= 0 {
		maxFrameSize = MaxFrameSize
	}
	if len(frame) > maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds frame size %d", ErrMalformed, len(frame), maxFrameSize)
	}

	f := &Fragment{}
	s := cryptobyte.String(frame)
	if !s.ReadUint8(&f.Header.Version) ||
		!s.ReadUint8(&f.Header.Flags) ||
		!s.ReadUint32(&f.Header.Sequence) {
		return nil, fmt.Errorf("%w: %d bytes is shorter than header", ErrMalformed, len(frame))
	}

	switch mode {
	case LengthExplicit:
		if !s.ReadUint8(&f.Header.Length) {
			return nil, fmt.Errorf("%w: %d bytes is shorter than header", ErrMalformed, len(frame))
		}
		maxPayload := maxFrameSize - ExplicitHeaderSize
		if int(f.Header.Length) > maxPayload {
			return nil, fmt.Errorf("%w: length %d exceeds payload capacity %d", ErrMalformed, f.Header.Length, maxPayload)
		}
		var payload []byte
		if !s.ReadBytes(&payload, int(f.Header.Length)) {
			return nil, fmt.Errorf("%w: length %d but only %d payload bytes", ErrMalformed, f.Header.Length, len(s))
		}
		f.Payload = payload

	case LengthTrailingZero:
		region := []byte(s)
		f.Payload = region[:trailingZeroLength(region)]
		f.Header.Length = uint8(len(f.Payload))
	}

	return f, nil
}

// trailingZeroLength returns the index of the last non-zero byte plus one.
// An all-zero region is taken to be full length, as the reference sender does.
func trailingZeroLength(region []byte) int {
	for i := len(region) - 1; i >= 0; i-- {
		if region[i] != 0 {
			return i + 1
		}
	}
	return len(region)
}

// Encode writes the fragment as a frame padded with zeros to frameSize.
func (f *Fragment) Encode(mode LengthMode, frameSize int) ([]byte, error) {
	if !mode.IsValid() {
		return nil, ErrInvalidLengthMode
	}
	if err := mode.CheckFrameSize(frameSize); err != nil {
		return nil, err
	}
	if len(f.Payload) > frameSize-mode.HeaderSize() {
		return nil, fmt.Errorf("%w: payload %d exceeds capacity %d", ErrMalformed, len(f.Payload), frameSize-mode.HeaderSize())
	}

	b := cryptobyte.NewFixedBuilder(make([]byte, 0, frameSize))
	b.AddUint8(f.Header.Version)
	b.AddUint8(f.Header.Flags)
	b.AddUint32(f.Header.Sequence)
	if mode == LengthExplicit {
		b.AddUint8(uint8(len(f.Payload)))
	}
	b.AddBytes(f.Payload)

	out, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	// Pad to the radio's fixed frame size
	return append(out, make([]byte, frameSize-len(out))...), nil
}
