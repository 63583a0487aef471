package receiver

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/coldremote/pkg/discovery"
	"github.com/backkem/coldremote/pkg/fragment"
	"github.com/backkem/coldremote/pkg/pipeline"
	"github.com/backkem/coldremote/pkg/reading"
	"github.com/backkem/coldremote/pkg/transport"
)

// Defaults.
const (
	DefaultQueueSize        = 64
	DefaultWatchdogTimeout  = 30 * time.Second
	DefaultWatchdogInterval = time.Second
)

// Config holds all configuration for a Receiver.
type Config struct {
	// Link - Required
	Key []byte // AES-128 pre-shared key

	// Message format - Optional (pipeline defaults if zero)
	LengthMode     fragment.LengthMode
	MaxFrameSize   int
	MaxMessageSize int
	ByteOrder      binary.ByteOrder

	// Radio
	ListenAddr string // UDP address (default: "0.0.0.0:5541")
	QueueSize  int    // Frames buffered ahead of the pipeline (default: 64)

	// Status HTTP
	DisableStatus  bool
	StatusAddr     string       // default ":8080"
	StatusListener net.Listener // overrides StatusAddr

	// mDNS advertisement of the status server
	Advertise         bool
	Instance          string
	MDNSServerFactory discovery.MDNSServerFactory // default zeroconf

	// History - Optional, empty disables storage
	StorePath  string
	MaxRecords int

	// Alarm and watchdog
	Limits           reading.Limits // default 10..30 °C
	WatchdogTimeout  time.Duration  // default 30s, negative disables
	WatchdogInterval time.Duration  // default 1s

	// Callbacks - Optional
	OnAccepted     func(pipeline.Accepted)
	OnRejected     func(*pipeline.Rejection)
	OnStateChanged func(State)

	// Clock returns the current time (default: time.Now).
	Clock func() time.Time

	// Advanced - Internal use / Testing
	TransportFactory transport.Factory // For virtual network testing

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.Key) == 0 {
		return ErrKeyRequired
	}
	if c.QueueSize < 0 {
		return ErrInvalidQueueSize
	}
	if c.Limits != (reading.Limits{}) {
		if err := c.Limits.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = net.JoinHostPort("0.0.0.0", "5541")
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Limits == (reading.Limits{}) {
		c.Limits = reading.DefaultLimits()
	}
	if c.WatchdogTimeout == 0 {
		c.WatchdogTimeout = DefaultWatchdogTimeout
	}
	if c.WatchdogInterval == 0 {
		c.WatchdogInterval = DefaultWatchdogInterval
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}
