package pipeline

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/backkem/coldremote/pkg/fragment"
	"github.com/backkem/coldremote/pkg/message"
	"github.com/backkem/coldremote/pkg/reading"
	"github.com/pion/logging"
)

var testKey = []byte{
	0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10,
}

// recorder collects callback invocations.
type recorder struct {
	accepted []Accepted
	rejected []*Rejection
}

func newTestPipeline(t *testing.T, rec *recorder, mutate func(*Config)) *Pipeline {
	t.Helper()
	config := Config{
		Key:           testKey,
		LoggerFactory: logging.NewDefaultLoggerFactory(),
		Clock:         func() time.Time { return time.Unix(1700000000, 0) },
	}
	if rec != nil {
		config.OnAccepted = func(a Accepted) { rec.accepted = append(rec.accepted, a) }
		config.OnRejected = func(r *Rejection) { rec.rejected = append(rec.rejected, r) }
	}
	if mutate != nil {
		mutate(&config)
	}
	p, err := New(config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

// testNonce derives a distinct nonce per sequence number.
func testNonce(seq uint32) []byte {
	n := make([]byte, message.NonceSize)
	binary.BigEndian.PutUint32(n[8:], seq)
	n[0] = 0xA5
	return n
}

func seal(t *testing.T, seq uint32, plaintext []byte) []byte {
	t.Helper()
	codec, err := message.NewCodec(testKey)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	msg, err := codec.Seal(seq, testNonce(seq), plaintext)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	return msg
}

// sealTrailingSafe picks a nonce whose message has no fragment ending in a
// zero byte, since trailing-zero inference would truncate it.
func sealTrailingSafe(t *testing.T, seq uint32, plaintext []byte) []byte {
	t.Helper()
	codec, err := message.NewCodec(testKey)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	chunk := fragment.MaxFrameSize - fragment.BaseHeaderSize
	nonce := testNonce(seq)
	for i := 0; i < 256; i++ {
		nonce[1] = byte(i)
		msg, err := codec.Seal(seq, nonce, plaintext)
		if err != nil {
			t.Fatalf("Seal() error = %v", err)
		}
		safe := true
		for end := chunk; ; end += chunk {
			end = min(end, len(msg))
			if msg[end-1] == 0 {
				safe = false
				break
			}
			if end == len(msg) {
				break
			}
		}
		if safe {
			return msg
		}
	}
	t.Fatal("no nonce yields a trailing-zero safe message")
	return nil
}

func split(t *testing.T, seq uint32, msg []byte, mode fragment.LengthMode, frameSize int) [][]byte {
	t.Helper()
	frames, err := fragment.Split(fragment.Version, seq, msg, mode, frameSize)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	return frames
}

// feed sends frames in order and returns the final outcome.
func feed(t *testing.T, p *Pipeline, frames [][]byte) (*Accepted, error) {
	t.Helper()
	for i, frame := range frames[:len(frames)-1] {
		acc, err := p.HandleFrame(frame)
		if acc != nil || err != nil {
			t.Fatalf("frame %d finished early: %v, %v", i, acc, err)
		}
		if p.State() != StateAssembling {
			t.Fatalf("frame %d: State() = %v, want Assembling", i, p.State())
		}
	}
	return p.HandleFrame(frames[len(frames)-1])
}

func requireReason(t *testing.T, err error, want Reason) *Rejection {
	t.Helper()
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("error = %v, want *Rejection", err)
	}
	if rej.Reason != want {
		t.Fatalf("Reason = %v, want %v (err: %v)", rej.Reason, want, rej.Err)
	}
	return rej
}

func TestConcreteScenario(t *testing.T) {
	want := reading.Reading{Temperature: 22.5, Latitude: 0, Longitude: 0}
	msg := seal(t, 1, want.Encode())

	// A 52-byte message spans three 32-byte frames, so widen the frame to
	// carry it as one first|last fragment.
	rec := &recorder{}
	p := newTestPipeline(t, rec, func(c *Config) { c.MaxFrameSize = 64 })
	frames := split(t, 1, msg, fragment.LengthExplicit, 64)
	if len(frames) != 1 {
		t.Fatalf("len(frames) = %d, want 1", len(frames))
	}

	acc, err := p.HandleFrame(frames[0])
	if err != nil {
		t.Fatalf("HandleFrame() error = %v", err)
	}
	if acc.Sequence != 1 || acc.Reading != want {
		t.Errorf("Accepted = %+v, want seq 1 %+v", acc, want)
	}
	if !acc.ReceivedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("ReceivedAt = %v", acc.ReceivedAt)
	}

	_, err = p.HandleFrame(frames[0])
	requireReason(t, err, ReasonReplayOrStale)
	if !errors.Is(err, message.ErrReplayDetected) {
		t.Errorf("errors.Is(err, ErrReplayDetected) = false")
	}

	if len(rec.accepted) != 1 || len(rec.rejected) != 1 {
		t.Errorf("callbacks: %d accepted, %d rejected, want 1 and 1", len(rec.accepted), len(rec.rejected))
	}
	if p.State() != StateIdle {
		t.Errorf("State() = %v, want Idle", p.State())
	}
}

func TestRoundTrip(t *testing.T) {
	readings := []reading.Reading{
		{Temperature: 22.5},
		{Temperature: -18.25, Latitude: -23.5505, Longitude: -46.6333},
		{Temperature: 4, Latitude: 52.52, Longitude: 13.405},
		{Temperature: 35.5, Latitude: 90, Longitude: -180},
	}

	for _, mode := range []fragment.LengthMode{fragment.LengthExplicit, fragment.LengthTrailingZero} {
		t.Run(mode.String(), func(t *testing.T) {
			rec := &recorder{}
			p := newTestPipeline(t, rec, func(c *Config) { c.LengthMode = mode })

			for i, want := range readings {
				seq := uint32(i + 1)
				msg := seal(t, seq, want.Encode())
				if mode == fragment.LengthTrailingZero {
					msg = sealTrailingSafe(t, seq, want.Encode())
				}
				frames := split(t, seq, msg, mode, fragment.MaxFrameSize)
				acc, err := feed(t, p, frames)
				if err != nil {
					t.Fatalf("seq %d: %v", seq, err)
				}
				if acc.Sequence != seq || acc.Reading != want {
					t.Errorf("seq %d: got %+v, want %+v", seq, acc, want)
				}
				last, ok := p.LastAccepted()
				if !ok || last.Sequence != seq {
					t.Errorf("LastAccepted() = %+v, %v", last, ok)
				}
			}
			if p.HighWater() != uint32(len(readings)) {
				t.Errorf("HighWater() = %d, want %d", p.HighWater(), len(readings))
			}
		})
	}
}

func TestBigEndianReading(t *testing.T) {
	p := newTestPipeline(t, nil, func(c *Config) { c.ByteOrder = binary.BigEndian })

	want := reading.Reading{Temperature: 12.5, Latitude: 1.5, Longitude: 2.5}
	frames := split(t, 3, seal(t, 3, want.EncodeOrder(binary.BigEndian)), fragment.LengthExplicit, fragment.MaxFrameSize)
	acc, err := feed(t, p, frames)
	if err != nil {
		t.Fatalf("feed() error = %v", err)
	}
	if acc.Reading != want {
		t.Errorf("Reading = %+v, want %+v", acc.Reading, want)
	}
}

func TestMonotonicity(t *testing.T) {
	p := newTestPipeline(t, nil, nil)
	r := reading.Reading{Temperature: 20}

	if _, err := feed(t, p, split(t, 10, seal(t, 10, r.Encode()), fragment.LengthExplicit, 0)); err != nil {
		t.Fatalf("seq 10: %v", err)
	}

	for _, seq := range []uint32{10, 9, 1, 0} {
		_, err := feed(t, p, split(t, seq, seal(t, seq, r.Encode()), fragment.LengthExplicit, 0))
		rej := requireReason(t, err, ReasonReplayOrStale)
		if rej.Sequence != seq || !rej.HasSequence {
			t.Errorf("Rejection sequence = %d (%v), want %d", rej.Sequence, rej.HasSequence, seq)
		}
	}

	if _, err := feed(t, p, split(t, 11, seal(t, 11, r.Encode()), fragment.LengthExplicit, 0)); err != nil {
		t.Errorf("seq 11: %v", err)
	}
	if p.HighWater() != 11 {
		t.Errorf("HighWater() = %d, want 11", p.HighWater())
	}
}

func TestTamperSensitivity(t *testing.T) {
	r := reading.Reading{Temperature: 22.5, Latitude: 1, Longitude: 2}
	const seq = 42
	msg := seal(t, seq, r.Encode())

	// Every bit of ciphertext and tag; the nonce region is covered too.
	for i := 0; i < len(msg); i++ {
		for bit := 0; bit < 8; bit += 3 {
			tampered := append([]byte(nil), msg...)
			tampered[i] ^= 1 << bit

			rec := &recorder{}
			p := newTestPipeline(t, rec, nil)
			_, err := feed(t, p, split(t, seq, tampered, fragment.LengthExplicit, 0))
			requireReason(t, err, ReasonAuthenticationFailed)
			if len(rec.accepted) != 0 {
				t.Fatalf("byte %d bit %d: reading accepted", i, bit)
			}
		}
	}

	// Sequence bits in the frame headers, both directions
	for bit := 0; bit < 32; bit++ {
		forged := uint32(seq) ^ (1 << bit)
		p := newTestPipeline(t, nil, nil)
		_, err := feed(t, p, split(t, forged, msg, fragment.LengthExplicit, 0))
		if !errors.Is(err, message.ErrDecryptionFailed) {
			t.Fatalf("sequence bit %d: error = %v, want authentication failure", bit, err)
		}
		if p.HighWater() != 0 {
			t.Fatalf("sequence bit %d: HighWater() = %d", bit, p.HighWater())
		}
	}
}

func TestWrongKey(t *testing.T) {
	other := bytes.Repeat([]byte{0x77}, 16)
	p := newTestPipeline(t, nil, func(c *Config) { c.Key = other })

	_, err := feed(t, p, split(t, 1, seal(t, 1, reading.Reading{}.Encode()), fragment.LengthExplicit, 0))
	requireReason(t, err, ReasonAuthenticationFailed)
}

func TestSequenceMismatchIsolation(t *testing.T) {
	rec := &recorder{}
	p := newTestPipeline(t, rec, nil)

	want := reading.Reading{Temperature: 7.5, Latitude: 3, Longitude: 4}
	frames := split(t, 5, seal(t, 5, want.Encode()), fragment.LengthExplicit, 0)
	if len(frames) < 2 {
		t.Fatalf("len(frames) = %d, need a multi-frame message", len(frames))
	}

	if _, err := p.HandleFrame(frames[0]); err != nil {
		t.Fatal(err)
	}

	stray := split(t, 99, bytes.Repeat([]byte{0x01}, 30), fragment.LengthExplicit, 0)[1]
	_, err := p.HandleFrame(stray)
	rej := requireReason(t, err, ReasonSequenceMismatch)
	if rej.Sequence != 99 {
		t.Errorf("Rejection.Sequence = %d, want 99", rej.Sequence)
	}
	if !errors.Is(err, fragment.ErrSequenceMismatch) {
		t.Error("errors.Is(err, ErrSequenceMismatch) = false")
	}
	if p.State() != StateAssembling {
		t.Fatalf("State() = %v after stray frame, want Assembling", p.State())
	}

	acc, err := feed(t, p, frames[1:])
	if err != nil {
		t.Fatalf("completing after stray: %v", err)
	}
	if acc.Reading != want {
		t.Errorf("Reading = %+v, want %+v", acc.Reading, want)
	}
	if len(rec.rejected) != 1 || len(rec.accepted) != 1 {
		t.Errorf("callbacks: %d accepted, %d rejected", len(rec.accepted), len(rec.rejected))
	}
}

func TestPreemption(t *testing.T) {
	p := newTestPipeline(t, nil, nil)

	stale := split(t, 2, seal(t, 2, reading.Reading{Temperature: 99}.Encode()), fragment.LengthExplicit, 0)
	for _, frame := range stale[:len(stale)-1] {
		if _, err := p.HandleFrame(frame); err != nil {
			t.Fatal(err)
		}
	}

	want := reading.Reading{Temperature: 15}
	acc, err := feed(t, p, split(t, 3, seal(t, 3, want.Encode()), fragment.LengthExplicit, 0))
	if err != nil {
		t.Fatalf("pre-empting message: %v", err)
	}
	if acc.Sequence != 3 || acc.Reading != want {
		t.Errorf("Accepted = %+v", acc)
	}

	// The stale tail is now an orphan continuation
	_, err = p.HandleFrame(stale[len(stale)-1])
	requireReason(t, err, ReasonSequenceMismatch)
}

func TestLengthGuards(t *testing.T) {
	t.Run("TooShort", func(t *testing.T) {
		for _, n := range []int{1, 16, message.MinMessageSize - 1} {
			p := newTestPipeline(t, nil, nil)
			_, err := feed(t, p, split(t, 1, bytes.Repeat([]byte{0xEE}, n), fragment.LengthExplicit, 0))
			requireReason(t, err, ReasonTooShort)
			if !errors.Is(err, message.ErrTooShort) {
				t.Errorf("%d bytes: errors.Is(err, ErrTooShort) = false", n)
			}
			if errors.Is(err, message.ErrDecryptionFailed) {
				t.Errorf("%d bytes: decryption was attempted", n)
			}
		}
	})

	t.Run("SizeMismatch", func(t *testing.T) {
		for _, n := range []int{0, 1, reading.Size - 1, reading.Size + 1, 2 * reading.Size} {
			p := newTestPipeline(t, nil, nil)
			_, err := feed(t, p, split(t, 1, seal(t, 1, make([]byte, n)), fragment.LengthExplicit, 0))
			requireReason(t, err, ReasonSizeMismatch)
			if !errors.Is(err, reading.ErrSizeMismatch) {
				t.Errorf("%d bytes: errors.Is(err, ErrSizeMismatch) = false", n)
			}
		}
	})
}

func TestSizeMismatchDoesNotConsumeSequence(t *testing.T) {
	p := newTestPipeline(t, nil, nil)

	_, err := feed(t, p, split(t, 5, seal(t, 5, make([]byte, 23)), fragment.LengthExplicit, 0))
	requireReason(t, err, ReasonSizeMismatch)
	if p.HighWater() != 0 {
		t.Fatalf("HighWater() = %d after size mismatch, want 0", p.HighWater())
	}

	if _, err := feed(t, p, split(t, 5, seal(t, 5, reading.Reading{}.Encode()), fragment.LengthExplicit, 0)); err != nil {
		t.Errorf("valid seq 5 after size mismatch: %v", err)
	}
}

func TestOversized(t *testing.T) {
	p := newTestPipeline(t, nil, func(c *Config) { c.MaxMessageSize = 40 })

	frames := split(t, 1, seal(t, 1, reading.Reading{}.Encode()), fragment.LengthExplicit, 0)
	var err error
	for _, frame := range frames {
		if _, err = p.HandleFrame(frame); err != nil {
			break
		}
	}
	requireReason(t, err, ReasonOversized)
	if p.State() != StateIdle {
		t.Errorf("State() = %v, want Idle", p.State())
	}
}

func TestMalformedFrame(t *testing.T) {
	rec := &recorder{}
	p := newTestPipeline(t, rec, nil)

	_, err := p.HandleFrame([]byte{0x01, 0x03})
	rej := requireReason(t, err, ReasonMalformed)
	if rej.HasSequence {
		t.Error("HasSequence = true for malformed frame")
	}
	if _, ok := p.LastAccepted(); ok {
		t.Error("LastAccepted() reports a reading after a rejection")
	}
	if len(rec.rejected) != 1 {
		t.Errorf("OnRejected called %d times, want 1", len(rec.rejected))
	}
}

func TestLastAcceptedSurvivesRejection(t *testing.T) {
	p := newTestPipeline(t, nil, nil)
	want := reading.Reading{Temperature: 21}

	if _, err := feed(t, p, split(t, 1, seal(t, 1, want.Encode()), fragment.LengthExplicit, 0)); err != nil {
		t.Fatal(err)
	}
	_, _ = p.HandleFrame([]byte{0x00})
	_, _ = feed(t, p, split(t, 1, seal(t, 1, want.Encode()), fragment.LengthExplicit, 0))

	last, ok := p.LastAccepted()
	if !ok || last.Sequence != 1 || last.Reading != want {
		t.Errorf("LastAccepted() = %+v, %v", last, ok)
	}
}

func TestReset(t *testing.T) {
	p := newTestPipeline(t, nil, nil)
	frames := split(t, 1, seal(t, 1, reading.Reading{}.Encode()), fragment.LengthExplicit, 0)

	if _, err := p.HandleFrame(frames[0]); err != nil {
		t.Fatal(err)
	}
	p.Reset()
	if p.State() != StateIdle {
		t.Fatalf("State() = %v after Reset, want Idle", p.State())
	}
	_, err := p.HandleFrame(frames[1])
	requireReason(t, err, ReasonSequenceMismatch)
}

func TestNewErrors(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New(no key) error = %v, want %v", err, ErrInvalidConfig)
	}
	if _, err := New(Config{Key: []byte{1, 2, 3}}); !errors.Is(err, message.ErrInvalidKey) {
		t.Errorf("New(short key) error = %v, want %v", err, message.ErrInvalidKey)
	}
}

func TestReasonString(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range Reasons {
		s := r.String()
		if s == "unknown" || seen[s] {
			t.Errorf("Reason %d has label %q", int(r), s)
		}
		seen[s] = true
	}
}

func TestTrailingZeroTruncatesZeroEndedPayload(t *testing.T) {
	p := newTestPipeline(t, nil, func(c *Config) { c.LengthMode = fragment.LengthTrailingZero })

	// 28 bytes ending in zero: the tail fragment "33 00" is inferred as one byte
	msg := append(bytes.Repeat([]byte{0x33}, message.MinMessageSize-1), 0x00)

	frames := split(t, 1, msg, fragment.LengthTrailingZero, 0)
	var last error
	for _, f := range frames {
		_, last = p.HandleFrame(f)
	}
	requireReason(t, last, ReasonTooShort)
}
