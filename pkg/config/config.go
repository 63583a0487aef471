// Package config implements the coldremote receiver configuration.
package config

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pion/logging"

	"github.com/backkem/coldremote/pkg/discovery"
	"github.com/backkem/coldremote/pkg/fragment"
	"github.com/backkem/coldremote/pkg/message"
	"github.com/backkem/coldremote/pkg/reading"
)

const (
	defaultRadioListen     = "0.0.0.0:5541"
	defaultQueueSize       = 64
	defaultStatusListen    = ":8080"
	defaultMaxRecords      = 10000
	defaultWatchdogTimeout = 30
	defaultLogLevel        = "info"
)

// Link is the radio link and message format configuration.
type Link struct {
	// KeyHex is the AES-128 pre-shared key as 32 hex characters.
	KeyHex string

	// LengthMode is "explicit" or "trailing-zero".
	LengthMode string

	// MaxFrameSize is the largest frame accepted.
	MaxFrameSize int

	// MaxMessageSize caps a reassembled message.
	MaxMessageSize int

	// ByteOrder of the reading plaintext: "little" or "big".
	ByteOrder string
}

func (l *Link) applyDefaults() {
	if l.LengthMode == "" {
		l.LengthMode = fragment.LengthExplicit.String()
	}
	if l.MaxFrameSize == 0 {
		l.MaxFrameSize = fragment.MaxFrameSize
	}
	if l.MaxMessageSize == 0 {
		l.MaxMessageSize = fragment.DefaultMaxMessageSize
	}
	if l.ByteOrder == "" {
		l.ByteOrder = "little"
	}
}

func (l *Link) validate() error {
	if l.KeyHex == "" {
		return errors.New("config: Link: KeyHex is mandatory")
	}
	if _, err := l.Key(); err != nil {
		return err
	}
	mode, err := fragment.ParseLengthMode(l.LengthMode)
	if err != nil {
		return fmt.Errorf("config: Link: %w", err)
	}
	if err := mode.CheckFrameSize(l.MaxFrameSize); err != nil {
		return fmt.Errorf("config: Link: MaxFrameSize: %w", err)
	}
	if l.MaxMessageSize < message.MinMessageSize {
		return fmt.Errorf("config: Link: MaxMessageSize %d is below the %d byte minimum message", l.MaxMessageSize, message.MinMessageSize)
	}
	if _, err := reading.ParseByteOrder(l.ByteOrder); err != nil {
		return fmt.Errorf("config: Link: %w", err)
	}
	return nil
}

// Key decodes KeyHex.
func (l *Link) Key() ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(l.KeyHex))
	if err != nil {
		return nil, fmt.Errorf("config: Link: KeyHex is not hex: %v", err)
	}
	if len(key) != message.KeySize {
		return nil, fmt.Errorf("config: Link: KeyHex must be %d bytes, got %d", message.KeySize, len(key))
	}
	return key, nil
}

// Mode returns the parsed LengthMode. Only valid after FixupAndValidate.
func (l *Link) Mode() fragment.LengthMode {
	mode, _ := fragment.ParseLengthMode(l.LengthMode)
	return mode
}

// Order returns the parsed ByteOrder. Only valid after FixupAndValidate.
func (l *Link) Order() binary.ByteOrder {
	order, _ := reading.ParseByteOrder(l.ByteOrder)
	return order
}

// Radio is the radio gateway socket configuration.
type Radio struct {
	// Listen is the UDP address frames arrive on.
	Listen string

	// QueueSize bounds frames waiting for the pipeline. Frames beyond it are
	// dropped.
	QueueSize int
}

func (r *Radio) applyDefaults() {
	if r.Listen == "" {
		r.Listen = defaultRadioListen
	}
	if r.QueueSize == 0 {
		r.QueueSize = defaultQueueSize
	}
}

func (r *Radio) validate() error {
	if _, err := net.ResolveUDPAddr("udp", r.Listen); err != nil {
		return fmt.Errorf("config: Radio: invalid Listen %q: %v", r.Listen, err)
	}
	if r.QueueSize < 0 {
		return errors.New("config: Radio: QueueSize must not be negative")
	}
	return nil
}

// Status is the HTTP status endpoint configuration.
type Status struct {
	// Listen is the TCP address of the status server.
	Listen string

	// Disable turns the status server off.
	Disable bool
}

func (s *Status) applyDefaults() {
	if s.Listen == "" {
		s.Listen = defaultStatusListen
	}
}

func (s *Status) validate() error {
	if s.Disable {
		return nil
	}
	if _, err := net.ResolveTCPAddr("tcp", s.Listen); err != nil {
		return fmt.Errorf("config: Status: invalid Listen %q: %v", s.Listen, err)
	}
	return nil
}

// Discovery is the mDNS advertisement configuration.
type Discovery struct {
	// Enable advertises the status server over mDNS.
	Enable bool

	// Instance is the service instance name.
	Instance string
}

func (d *Discovery) applyDefaults() {
	if d.Instance == "" {
		d.Instance = discovery.DefaultInstance
	}
}

func (d *Discovery) validate(status *Status) error {
	if !d.Enable {
		return nil
	}
	if status.Disable {
		return errors.New("config: Discovery: Enable requires the Status server")
	}
	if len(d.Instance) > discovery.MaxInstanceNameLength {
		return fmt.Errorf("config: Discovery: Instance longer than %d bytes", discovery.MaxInstanceNameLength)
	}
	return nil
}

// Storage is the reading history configuration.
type Storage struct {
	// Path of the history database. Empty disables history.
	Path string

	// MaxRecords bounds the history.
	MaxRecords int
}

func (s *Storage) applyDefaults() {
	if s.MaxRecords == 0 {
		s.MaxRecords = defaultMaxRecords
	}
}

func (s *Storage) validate() error {
	if s.MaxRecords < 0 {
		return errors.New("config: Storage: MaxRecords must not be negative")
	}
	return nil
}

// Alarm is the temperature alarm and link watchdog configuration.
type Alarm struct {
	MinTemperature *float32
	MaxTemperature *float32

	// WatchdogTimeoutSec is how long the link may stay silent before it is
	// reported down.
	WatchdogTimeoutSec int
}

func (a *Alarm) applyDefaults() {
	def := reading.DefaultLimits()
	if a.MinTemperature == nil {
		a.MinTemperature = &def.Min
	}
	if a.MaxTemperature == nil {
		a.MaxTemperature = &def.Max
	}
	if a.WatchdogTimeoutSec == 0 {
		a.WatchdogTimeoutSec = defaultWatchdogTimeout
	}
}

func (a *Alarm) validate() error {
	if err := a.Limits().Validate(); err != nil {
		return fmt.Errorf("config: Alarm: %w", err)
	}
	if a.WatchdogTimeoutSec < 0 {
		return errors.New("config: Alarm: WatchdogTimeoutSec must not be negative")
	}
	return nil
}

// Limits returns the alarm limits. Only valid after FixupAndValidate.
func (a *Alarm) Limits() reading.Limits {
	return reading.Limits{Min: *a.MinTemperature, Max: *a.MaxTemperature}
}

// WatchdogTimeout returns WatchdogTimeoutSec as a duration.
func (a *Alarm) WatchdogTimeout() time.Duration {
	return time.Duration(a.WatchdogTimeoutSec) * time.Second
}

// Logging is the logging configuration.
type Logging struct {
	// Level is one of "disabled", "error", "warn", "info", "debug", "trace".
	Level string
}

func (l *Logging) applyDefaults() {
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
}

func (l *Logging) validate() error {
	if _, err := ParseLogLevel(l.Level); err != nil {
		return fmt.Errorf("config: Logging: %w", err)
	}
	return nil
}

// LoggerFactory builds a pion logger factory at the configured level.
func (l *Logging) LoggerFactory() logging.LoggerFactory {
	level, _ := ParseLogLevel(l.Level)
	f := logging.NewDefaultLoggerFactory()
	f.DefaultLogLevel = level
	return f
}

// ParseLogLevel parses a log level name.
func ParseLogLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(s) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info", "":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// Config is the top level receiver configuration.
type Config struct {
	Link      *Link
	Radio     *Radio
	Status    *Status
	Discovery *Discovery
	Storage   *Storage
	Alarm     *Alarm
	Logging   *Logging
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration. Most people should call one of the Load variants
// instead.
func (cfg *Config) FixupAndValidate() error {
	// The Link section is mandatory, everything else is optional.
	if cfg.Link == nil {
		return errors.New("config: No Link block was present")
	}
	if cfg.Radio == nil {
		cfg.Radio = &Radio{}
	}
	if cfg.Status == nil {
		cfg.Status = &Status{}
	}
	if cfg.Discovery == nil {
		cfg.Discovery = &Discovery{}
	}
	if cfg.Storage == nil {
		cfg.Storage = &Storage{}
	}
	if cfg.Alarm == nil {
		cfg.Alarm = &Alarm{}
	}
	if cfg.Logging == nil {
		cfg.Logging = &Logging{}
	}

	cfg.Link.applyDefaults()
	cfg.Radio.applyDefaults()
	cfg.Status.applyDefaults()
	cfg.Discovery.applyDefaults()
	cfg.Storage.applyDefaults()
	cfg.Alarm.applyDefaults()
	cfg.Logging.applyDefaults()

	if err := cfg.Link.validate(); err != nil {
		return err
	}
	if err := cfg.Radio.validate(); err != nil {
		return err
	}
	if err := cfg.Status.validate(); err != nil {
		return err
	}
	if err := cfg.Discovery.validate(cfg.Status); err != nil {
		return err
	}
	if err := cfg.Storage.validate(); err != nil {
		return err
	}
	if err := cfg.Alarm.validate(); err != nil {
		return err
	}
	return cfg.Logging.validate()
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("config: No nil buffer as config file")
	}

	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
