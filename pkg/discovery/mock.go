package discovery

import (
	"errors"
	"net"
	"sync"
)

// errMockRegister is returned by a failing MockServerFactory.
var errMockRegister = errors.New("discovery: mock registration failure")

// MockServer records whether it was shut down.
type MockServer struct {
	mu       sync.Mutex
	shutdown bool
}

// Shutdown implements MDNSServer.
func (s *MockServer) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
}

// IsShutdown reports whether Shutdown was called.
func (s *MockServer) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Registration is one call to MockServerFactory.Register.
type Registration struct {
	Instance string
	Service  string
	Domain   string
	Port     int
	TXT      []string
	Server   *MockServer
}

// MockServerFactory is an MDNSServerFactory that records registrations
// instead of touching the network.
type MockServerFactory struct {
	mu            sync.Mutex
	registrations []Registration
	fail          bool
}

// NewMockServerFactory creates a mock factory.
func NewMockServerFactory() *MockServerFactory {
	return &MockServerFactory{}
}

// SetFail makes subsequent Register calls fail.
func (f *MockServerFactory) SetFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

// Register implements MDNSServerFactory.
func (f *MockServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return nil, errMockRegister
	}

	server := &MockServer{}
	f.registrations = append(f.registrations, Registration{
		Instance: instance,
		Service:  service,
		Domain:   domain,
		Port:     port,
		TXT:      append([]string(nil), txt...),
		Server:   server,
	})
	return server, nil
}

// Registrations returns a copy of all registrations so far.
func (f *MockServerFactory) Registrations() []Registration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Registration(nil), f.registrations...)
}

// Last returns the most recent registration, and false if there was none.
func (f *MockServerFactory) Last() (Registration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.registrations) == 0 {
		return Registration{}, false
	}
	return f.registrations[len(f.registrations)-1], true
}
