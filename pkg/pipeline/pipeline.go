// Package pipeline turns radio frames into authenticated, fresh sensor
// readings.
//
// Each frame passes through the stages:
//
//	reassemble -> split -> open (AEAD) -> replay check -> decode -> commit
//
// The replay high-water mark only advances once every stage succeeds.
package pipeline

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/backkem/coldremote/pkg/fragment"
	"github.com/backkem/coldremote/pkg/message"
	"github.com/backkem/coldremote/pkg/reading"
	"github.com/pion/logging"
)

// Accepted is a reading that passed every check.
type Accepted struct {
	Sequence   uint32
	Reading    reading.Reading
	ReceivedAt time.Time
	Fragments  int
}

// Config configures a Pipeline.
type Config struct {
	// Key is the 16-byte AES-128 pre-shared key (required).
	Key []byte

	// LengthMode selects how frame payload length is found (default: explicit).
	LengthMode fragment.LengthMode

	// MaxFrameSize is the largest frame accepted (default: 32).
	MaxFrameSize int

	// MaxMessageSize caps an assembly (default: 1024).
	MaxMessageSize int

	// ByteOrder of the reading plaintext (default: little-endian).
	ByteOrder binary.ByteOrder

	// OnAccepted is called once for every accepted reading.
	OnAccepted func(Accepted)

	// OnRejected is called once for every rejection.
	OnRejected func(*Rejection)

	// Clock returns the receive timestamp (default: time.Now).
	Clock func() time.Time

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Pipeline is the receive path for one radio link.
//
// A Pipeline is not safe for concurrent use. Feed it from a single goroutine.
type Pipeline struct {
	reassembler *fragment.Reassembler
	codec       *message.Codec
	guard       *message.ReplayGuard
	order       binary.ByteOrder
	clock       func() time.Time
	onAccepted  func(Accepted)
	onRejected  func(*Rejection)
	log         logging.LeveledLogger

	mode         fragment.LengthMode
	maxFrameSize int

	last    Accepted
	hasLast bool
}

// New creates a pipeline with the given configuration.
func New(config Config) (*Pipeline, error) {
	if len(config.Key) == 0 {
		return nil, fmt.Errorf("%w: key is required", ErrInvalidConfig)
	}

	codec, err := message.NewCodec(config.Key)
	if err != nil {
		return nil, err
	}

	reassembler, err := fragment.NewReassembler(fragment.ReassemblerConfig{
		LengthMode:     config.LengthMode,
		MaxFrameSize:   config.MaxFrameSize,
		MaxMessageSize: config.MaxMessageSize,
		LoggerFactory:  config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	if config.ByteOrder == nil {
		config.ByteOrder = binary.LittleEndian
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = fragment.MaxFrameSize
	}

	p := &Pipeline{
		reassembler:  reassembler,
		codec:        codec,
		guard:        message.NewReplayGuard(),
		order:        config.ByteOrder,
		clock:        config.Clock,
		onAccepted:   config.OnAccepted,
		onRejected:   config.OnRejected,
		mode:         config.LengthMode,
		maxFrameSize: config.MaxFrameSize,
	}
	if config.LoggerFactory != nil {
		p.log = config.LoggerFactory.NewLogger("pipeline")
	}
	return p, nil
}

// HandleFrame processes one radio frame.
//
// Returns:
//   - nil, nil while a message is still being assembled
//   - the accepted reading once a message completes and passes every check
//   - a *Rejection otherwise
//
// OnAccepted or OnRejected is invoked before HandleFrame returns.
func (p *Pipeline) HandleFrame(frame []byte) (*Accepted, error) {
	assembled, err := p.reassembler.Accept(frame)
	if err != nil {
		return nil, p.reject(p.frameRejection(frame, err))
	}
	if assembled == nil {
		return nil, nil
	}

	seq := assembled.Sequence

	plaintext, err := p.codec.Open(seq, assembled.Data)
	if err != nil {
		reason := ReasonAuthenticationFailed
		if errors.Is(err, message.ErrTooShort) {
			reason = ReasonTooShort
		}
		return nil, p.reject(&Rejection{Reason: reason, Sequence: seq, HasSequence: true, Err: err})
	}

	if !p.guard.Check(seq) {
		err := fmt.Errorf("%w: seq %d, high-water %d", message.ErrReplayDetected, seq, p.guard.HighWater())
		return nil, p.reject(&Rejection{Reason: ReasonReplayOrStale, Sequence: seq, HasSequence: true, Err: err})
	}

	r, err := reading.DecodeOrder(plaintext, p.order)
	if err != nil {
		return nil, p.reject(&Rejection{Reason: ReasonSizeMismatch, Sequence: seq, HasSequence: true, Err: err})
	}

	p.guard.Admit(seq)

	accepted := Accepted{
		Sequence:   seq,
		Reading:    r,
		ReceivedAt: p.clock(),
		Fragments:  assembled.Fragments,
	}
	p.last = accepted
	p.hasLast = true

	if p.log != nil {
		p.log.Tracef("seq %d accepted (%d fragments)", seq, assembled.Fragments)
	}
	if p.onAccepted != nil {
		p.onAccepted(accepted)
	}

	out := accepted
	return &out, nil
}

// frameRejection classifies a reassembler error. The header is parsed again
// to recover the sequence number, which fails only for malformed frames.
func (p *Pipeline) frameRejection(frame []byte, err error) *Rejection {
	rej := &Rejection{Reason: ReasonMalformed, Err: err}
	switch {
	case errors.Is(err, fragment.ErrSequenceMismatch):
		rej.Reason = ReasonSequenceMismatch
	case errors.Is(err, fragment.ErrMessageTooLarge):
		rej.Reason = ReasonOversized
	}
	if f, derr := fragment.Decode(frame, p.mode, p.maxFrameSize); derr == nil {
		rej.Sequence = f.Header.Sequence
		rej.HasSequence = true
	}
	return rej
}

func (p *Pipeline) reject(rej *Rejection) error {
	if p.log != nil {
		p.log.Tracef("%v", rej)
	}
	if p.onRejected != nil {
		p.onRejected(rej)
	}
	return rej
}

// LastAccepted returns the most recent accepted reading, and false if none
// has been accepted yet. Rejections never change it.
func (p *Pipeline) LastAccepted() (Accepted, bool) {
	return p.last, p.hasLast
}

// HighWater returns the highest accepted sequence number, or 0.
func (p *Pipeline) HighWater() uint32 {
	return p.guard.HighWater()
}

// State returns the current reassembly state.
func (p *Pipeline) State() State {
	if p.reassembler.Assembling() {
		return StateAssembling
	}
	return StateIdle
}

// Reset discards any in-progress assembly. The replay mark is kept.
func (p *Pipeline) Reset() {
	p.reassembler.Reset()
}
