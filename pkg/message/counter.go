package message

import (
	"crypto/rand"
	"sync"
)

// ReplayGuard tracks the highest sequence number accepted so far and rejects
// anything that is not strictly greater.
//
// The link is single-sender and half-duplex, so unlike a sliding-window
// bitmap there is no tolerance for out-of-order delivery: a sequence number
// at or below the high-water mark is always stale.
//
// A ReplayGuard is owned by one pipeline and is not safe for concurrent use.
type ReplayGuard struct {
	highWater uint32 // 0 means no message accepted yet
}

// NewReplayGuard creates a guard with no accepted messages.
func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{}
}

// NewReplayGuardWithHighWater creates a guard that only accepts sequence
// numbers above highWater. Used for testing.
func NewReplayGuardWithHighWater(highWater uint32) *ReplayGuard {
	return &ReplayGuard{highWater: highWater}
}

// Check reports whether sequence would be admitted, without changing state.
func (g *ReplayGuard) Check(sequence uint32) bool {
	return sequence > g.highWater
}

// Admit checks sequence and, if it is strictly greater than the high-water
// mark, records it and returns true. Otherwise state is unchanged.
func (g *ReplayGuard) Admit(sequence uint32) bool {
	if !g.Check(sequence) {
		return false
	}
	g.highWater = sequence
	return true
}

// HighWater returns the highest sequence number admitted so far.
func (g *ReplayGuard) HighWater() uint32 {
	return g.highWater
}

// MessageCounter hands out outgoing sequence numbers for the sender side.
// It starts at 1 because 0 is the receiver's "nothing accepted" mark.
// It is safe for concurrent use.
type MessageCounter struct {
	value     uint32
	exhausted bool
	mu        sync.Mutex
}

// NewMessageCounter creates a counter whose first value is 1.
func NewMessageCounter() *MessageCounter {
	return NewMessageCounterWithValue(1)
}

// NewMessageCounterWithValue creates a counter with a specific next value.
// Used for testing or resuming a sender after restart.
func NewMessageCounterWithValue(next uint32) *MessageCounter {
	return &MessageCounter{value: next}
}

// Next returns the next sequence number.
// Returns ErrCounterExhausted once 2^32-1 has been handed out, since the
// receiver would reject anything after a wrap.
func (c *MessageCounter) Next() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exhausted || c.value == 0 {
		return 0, ErrCounterExhausted
	}

	current := c.value
	c.value++
	if c.value == 0 {
		c.exhausted = true
	}
	return current, nil
}

// Current returns the next value without incrementing.
func (c *MessageCounter) Current() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// NewNonce returns a random 12-byte nonce for the sender side.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}
