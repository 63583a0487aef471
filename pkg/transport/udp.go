package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
)

// DefaultPort is the UDP port the radio gateway forwards frames to.
const DefaultPort = 5541

// MaxDatagramSize bounds a single datagram. Radio frames are far smaller;
// anything the gateway sends up to this size is passed on for the receive
// path to classify. Larger datagrams are counted and dropped here.
const MaxDatagramSize = 1500

type udpState int

const (
	udpIdle udpState = iota
	udpRunning
	udpClosed
)

// Stats counts datagrams seen by the read loop.
type Stats struct {
	// Frames is the number of datagrams handed to the FrameHandler.
	Frames uint64
	// Bytes is the total size of those datagrams.
	Bytes uint64
	// Empty counts zero-length datagrams, which gateways use as keepalives.
	Empty uint64
	// Oversize counts datagrams longer than MaxDatagramSize.
	Oversize uint64
	// ReadErrors counts transient read failures.
	ReadErrors uint64
}

// UDP receives radio frames forwarded by a gateway, one frame per datagram.
// Each datagram is copied before it reaches the FrameHandler.
type UDP struct {
	conn    net.PacketConn
	handler FrameHandler
	log     logging.LeveledLogger

	frames     atomic.Uint64
	bytes      atomic.Uint64
	empty      atomic.Uint64
	oversize   atomic.Uint64
	readErrors atomic.Uint64

	mu    sync.Mutex
	state udpState
	done  chan struct{}
}

// UDPConfig configures the UDP transport.
type UDPConfig struct {
	// Conn is an optional pre-existing PacketConn, e.g. from a PipeFactory.
	// When nil, ListenAddr is bound.
	Conn net.PacketConn

	// ListenAddr is the gateway-facing address, ":0" when empty.
	ListenAddr string

	// FrameHandler receives every non-empty datagram. Required.
	FrameHandler FrameHandler

	// LoggerFactory is optional; nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// NewUDP binds the radio socket. The read loop starts with Start.
func NewUDP(config UDPConfig) (*UDP, error) {
	if config.FrameHandler == nil {
		return nil, ErrNoHandler
	}

	conn := config.Conn
	if conn == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		c, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		conn = c
	}

	u := &UDP{
		conn:    conn,
		handler: config.FrameHandler,
		done:    make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		u.log = config.LoggerFactory.NewLogger("transport-udp")
	}
	return u, nil
}

// Start launches the read loop. A UDP transport runs once.
func (u *UDP) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch u.state {
	case udpRunning:
		return ErrAlreadyStarted
	case udpClosed:
		return ErrClosed
	}
	u.state = udpRunning

	if u.log != nil {
		u.log.Infof("listening for radio frames on %s", u.conn.LocalAddr())
	}

	go u.readLoop()
	return nil
}

// Stop closes the socket and waits for the read loop to exit. Stop on a
// transport that was never started only releases the socket.
func (u *UDP) Stop() error {
	u.mu.Lock()
	prev := u.state
	if prev == udpClosed {
		u.mu.Unlock()
		return ErrClosed
	}
	u.state = udpClosed
	u.mu.Unlock()

	u.conn.SetReadDeadline(time.Now())
	err := u.conn.Close()
	if prev == udpRunning {
		<-u.done
	}

	if u.log != nil {
		s := u.Stats()
		u.log.Infof("radio socket closed: frames=%d bytes=%d empty=%d oversize=%d read-errors=%d",
			s.Frames, s.Bytes, s.Empty, s.Oversize, s.ReadErrors)
	}
	return err
}

// LocalAddr returns the address the gateway should forward frames to.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// Stats returns a snapshot of the read loop counters.
func (u *UDP) Stats() Stats {
	return Stats{
		Frames:     u.frames.Load(),
		Bytes:      u.bytes.Load(),
		Empty:      u.empty.Load(),
		Oversize:   u.oversize.Load(),
		ReadErrors: u.readErrors.Load(),
	}
}

func (u *UDP) closing() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state == udpClosed
}

func (u *UDP) readLoop() {
	defer close(u.done)

	// One spare byte tells a datagram of exactly MaxDatagramSize apart from
	// a longer one the socket truncated.
	buf := make([]byte, MaxDatagramSize+1)

	for {
		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			if u.closing() {
				return
			}
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
				if u.log != nil {
					u.log.Warnf("radio socket closed underneath the read loop: %v", err)
				}
				return
			}
			u.readErrors.Add(1)
			if u.log != nil {
				u.log.Warnf("radio read error: %v", err)
			}
			continue
		}

		switch {
		case n == 0:
			u.empty.Add(1)
			continue
		case n > MaxDatagramSize:
			u.oversize.Add(1)
			if u.log != nil {
				u.log.Debugf("dropping oversize datagram from %v", addr)
			}
			continue
		}

		u.frames.Add(1)
		u.bytes.Add(uint64(n))

		if u.log != nil {
			u.log.Tracef("received %d bytes from %v", n, addr)
		}

		u.handler(&ReceivedFrame{
			Data:   append([]byte(nil), buf[:n]...),
			Source: addr,
		})
	}
}
