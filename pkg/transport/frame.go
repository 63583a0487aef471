package transport

import "net"

// ReceivedFrame is one radio frame as forwarded by the gateway.
// Data is a private copy; the handler may retain it.
type ReceivedFrame struct {
	// Data contains the raw frame bytes, possibly padded by the radio.
	Data []byte
	// Source is the gateway that forwarded the frame.
	Source net.Addr
}

// FrameHandler is called for each received frame.
// Implementations should return quickly or hand the frame off to another
// goroutine to avoid blocking the transport's read loop.
type FrameHandler func(frame *ReceivedFrame)
