package discovery

import (
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DNS-SD service parameters for the status endpoint.
const (
	// ServiceHTTP is the DNS-SD service type browsers and dashboards look for.
	ServiceHTTP = "_http._tcp"

	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."

	// DefaultInstance is the advertised instance name.
	DefaultInstance = "coldremote"

	// DefaultPath is the latest-reading endpoint announced in the TXT record.
	DefaultPath = "/data"
)

// MDNSServer is the interface for mDNS service registration.
// This allows for dependency injection in tests.
type MDNSServer interface {
	// Shutdown stops the server.
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances.
type MDNSServerFactory interface {
	// Register creates a new mDNS server for the given service.
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

// zeroconfServerFactory is the production implementation using grandcat/zeroconf.
type zeroconfServerFactory struct{}

func (z *zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiserConfig holds configuration for the Advertiser.
type AdvertiserConfig struct {
	// Instance is the DNS-SD instance name (default: "coldremote").
	Instance string

	// Port is the status HTTP port to advertise. Required.
	Port int

	// TXT is the record published with the service.
	// An empty Path defaults to "/data".
	TXT StatusTXT

	// Interfaces specifies which network interfaces to advertise on.
	// If nil, all interfaces are used.
	Interfaces []net.Interface

	// ServerFactory is the factory for creating mDNS servers.
	// If nil, the default zeroconf factory is used.
	ServerFactory MDNSServerFactory

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Advertiser announces the receiver's status endpoint over mDNS so a
// dashboard on the local network can find it without configuration.
type Advertiser struct {
	config  AdvertiserConfig
	factory MDNSServerFactory
	log     logging.LeveledLogger

	mu     sync.Mutex
	server MDNSServer
	closed bool
}

// NewAdvertiser creates a new Advertiser with the given configuration.
func NewAdvertiser(config AdvertiserConfig) (*Advertiser, error) {
	if config.Port <= 0 || config.Port > 65535 {
		return nil, ErrInvalidPort
	}
	if config.Instance == "" {
		config.Instance = DefaultInstance
	}
	if len(config.Instance) > MaxInstanceNameLength {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidInstanceName, len(config.Instance), MaxInstanceNameLength)
	}
	if config.TXT.Path == "" {
		config.TXT.Path = DefaultPath
	}
	if _, err := config.TXT.Encode(); err != nil {
		return nil, err
	}

	factory := config.ServerFactory
	if factory == nil {
		factory = &zeroconfServerFactory{}
	}

	a := &Advertiser{
		config:  config,
		factory: factory,
	}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("discovery")
	}
	return a, nil
}

// Start registers the status service.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server != nil {
		return ErrAlreadyStarted
	}

	txt, err := a.config.TXT.Encode()
	if err != nil {
		return err
	}

	if a.log != nil {
		a.log.Debugf("registering mDNS service: instance=%s service=%s domain=%s port=%d",
			a.config.Instance, ServiceHTTP, DefaultDomain, a.config.Port)
		a.log.Tracef("TXT records: %v", txt)
	}

	server, err := a.factory.Register(
		a.config.Instance,
		ServiceHTTP,
		DefaultDomain,
		a.config.Port,
		txt,
		a.config.Interfaces,
	)
	if err != nil {
		return fmt.Errorf("discovery: mDNS registration failed for %s: %w", ServiceHTTP, err)
	}

	if a.log != nil {
		a.log.Infof("advertising %s.%s%s on port %d", a.config.Instance, ServiceHTTP, DefaultDomain, a.config.Port)
	}

	a.server = server
	return nil
}

// Stop withdraws the advertisement. The advertiser can be started again.
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server == nil {
		return ErrNotStarted
	}

	a.server.Shutdown()
	a.server = nil
	return nil
}

// Close withdraws any advertisement and closes the advertiser.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	a.closed = true
	return nil
}

// IsAdvertising returns true while the service is registered.
func (a *Advertiser) IsAdvertising() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// Instance returns the advertised instance name.
func (a *Advertiser) Instance() string {
	return a.config.Instance
}
