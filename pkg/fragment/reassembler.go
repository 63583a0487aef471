package fragment

import (
	"bytes"
	"fmt"

	"github.com/pion/logging"
)

// Assembled is a completed message handed out exactly once by the Reassembler.
type Assembled struct {
	// Sequence is the message sequence number shared by all its fragments.
	Sequence uint32
	// Data is the concatenated fragment payloads. The caller owns it.
	Data []byte
	// Fragments is the number of frames the message spanned.
	Fragments int
}

// ReassemblerConfig configures a Reassembler.
type ReassemblerConfig struct {
	// LengthMode selects how payload length is determined (default: LengthExplicit).
	LengthMode LengthMode

	// MaxFrameSize is the largest frame accepted (default: MaxFrameSize).
	MaxFrameSize int

	// MaxMessageSize caps an assembly (default: DefaultMaxMessageSize).
	MaxMessageSize int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Reassembler rebuilds messages from a stream of radio frames.
// At most one message is in flight; a new first fragment always pre-empts
// a stale assembly.
//
// A Reassembler is not safe for concurrent use.
type Reassembler struct {
	mode           LengthMode
	maxFrameSize   int
	maxMessageSize int
	log            logging.LeveledLogger

	buffer     bytes.Buffer
	expected   uint32
	assembling bool
	fragments  int
}

// NewReassembler creates a reassembler with the given configuration.
func NewReassembler(config ReassemblerConfig) (*Reassembler, error) {
	if !config.LengthMode.IsValid() {
		return nil, ErrInvalidLengthMode
	}
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = MaxFrameSize
	}
	if err := config.LengthMode.CheckFrameSize(config.MaxFrameSize); err != nil {
		return nil, err
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}

	r := &Reassembler{
		mode:           config.LengthMode,
		maxFrameSize:   config.MaxFrameSize,
		maxMessageSize: config.MaxMessageSize,
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("reassembler")
	}
	return r, nil
}

// Accept consumes one radio frame.
//
// Returns:
//   - nil, nil while a message is still being assembled
//   - the completed message once a last-flagged fragment arrives
//   - ErrMalformed, ErrSequenceMismatch or ErrMessageTooLarge on rejection
//
// Malformed frames and mismatched continuations leave an in-progress assembly
// untouched, so a stray frame does not cost the message being built.
func (r *Reassembler) Accept(frame []byte) (*Assembled, error) {
	f, err := Decode(frame, r.mode, r.maxFrameSize)
	if err != nil {
		return nil, err
	}
	h := f.Header

	if h.IsFirst() {
		if r.assembling && r.log != nil {
			r.log.Debugf("seq %d pre-empts incomplete seq %d (%d bytes discarded)", h.Sequence, r.expected, r.buffer.Len())
		}
		r.Reset()
		r.expected = h.Sequence
		r.assembling = true
	} else if !r.assembling || h.Sequence != r.expected {
		if r.assembling {
			return nil, fmt.Errorf("%w: got %d, expected %d", ErrSequenceMismatch, h.Sequence, r.expected)
		}
		return nil, fmt.Errorf("%w: got %d while idle", ErrSequenceMismatch, h.Sequence)
	}

	if r.buffer.Len()+len(f.Payload) > r.maxMessageSize {
		size := r.buffer.Len() + len(f.Payload)
		r.Reset()
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, size, r.maxMessageSize)
	}

	r.buffer.Write(f.Payload)
	r.fragments++

	if !h.IsLast() {
		return nil, nil
	}

	data := make([]byte, r.buffer.Len())
	copy(data, r.buffer.Bytes())
	out := &Assembled{
		Sequence:  r.expected,
		Data:      data,
		Fragments: r.fragments,
	}
	r.Reset()
	return out, nil
}

// Reset discards any in-progress assembly.
func (r *Reassembler) Reset() {
	r.buffer.Reset()
	r.assembling = false
	r.expected = 0
	r.fragments = 0
}

// Assembling returns true if a message is in progress.
func (r *Reassembler) Assembling() bool {
	return r.assembling
}

// Expected returns the sequence number being assembled, and false when idle.
func (r *Reassembler) Expected() (uint32, bool) {
	return r.expected, r.assembling
}

// Len returns the number of payload bytes buffered so far.
func (r *Reassembler) Len() int {
	return r.buffer.Len()
}

// LengthMode returns the configured length mode.
func (r *Reassembler) LengthMode() LengthMode {
	return r.mode
}
