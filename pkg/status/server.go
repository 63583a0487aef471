// Package status serves the last accepted reading, recent history and link
// health over HTTP for dashboards on the local network.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pion/logging"
)

// History limits for GET /readings.
const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// DefaultListenAddr is the default status HTTP address.
const DefaultListenAddr = ":8080"

// Reading is the JSON shape of one reading.
type Reading struct {
	Sequence    uint32    `json:"sequence"`
	Temperature float32   `json:"temperature"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	ReceivedAt  time.Time `json:"received_at"`
	Alarm       string    `json:"alarm"`
}

// Health is the JSON shape of GET /healthz.
type Health struct {
	Alive        bool       `json:"alive"`
	LastAccepted *time.Time `json:"last_accepted"`
}

// HistoryFunc returns up to limit readings, newest first.
type HistoryFunc func(limit int) ([]Reading, error)

// Config configures a Server.
type Config struct {
	// ListenAddr is the TCP address to serve on (default: ":8080").
	ListenAddr string

	// Listener is an optional pre-existing listener. Overrides ListenAddr.
	Listener net.Listener

	// History backs GET /readings. If nil, the endpoint returns 404.
	History HistoryFunc

	// Alive reports link liveness for GET /healthz.
	// If nil, the link is alive once a reading has been accepted.
	Alive func() bool

	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Server is the status HTTP endpoint.
type Server struct {
	config Config
	mux    *http.ServeMux
	log    logging.LeveledLogger

	mu      sync.RWMutex
	latest  Reading
	hasData bool

	srvMu    sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// New creates a status server. Call Start to begin serving, or use Handler
// directly.
func New(config Config) *Server {
	if config.ListenAddr == "" {
		config.ListenAddr = DefaultListenAddr
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("status")
	}

	s.mux.HandleFunc("GET /data", s.handleData)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if config.History != nil {
		s.mux.HandleFunc("GET /readings", s.handleReadings)
	}
	if config.Metrics != nil {
		s.mux.Handle("GET /metrics", config.Metrics)
	}
	return s
}

// SetLatest replaces the reading served by GET /data.
func (s *Server) SetLatest(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = r
	s.hasData = true
}

// Latest returns the reading served by GET /data, and false before the first.
func (s *Server) Latest() (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.hasData
}

// Handler returns the HTTP handler with CORS applied to every response.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.mux.ServeHTTP(w, r)
	})
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	s.srvMu.Lock()
	defer s.srvMu.Unlock()

	if s.srv != nil {
		return ErrAlreadyStarted
	}

	ln := s.config.Listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.config.ListenAddr)
		if err != nil {
			return err
		}
	}

	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.done = make(chan struct{})

	if s.log != nil {
		s.log.Infof("status server listening on http://%s", ln.Addr())
	}

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.log != nil {
				s.log.Errorf("status server stopped: %v", err)
			}
		}
	}(s.srv, s.done)

	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.srvMu.Lock()
	srv, done := s.srv, s.done
	s.srv = nil
	s.srvMu.Unlock()

	if srv == nil {
		return ErrNotStarted
	}

	err := srv.Shutdown(ctx)
	<-done
	return err
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.srvMu.Lock()
	defer s.srvMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the listening TCP port, or 0 before Start.
func (s *Server) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	latest, ok := s.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	limit := DefaultHistoryLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, MaxHistoryLimit)
	}

	readings, err := s.config.History(limit)
	if err != nil {
		if s.log != nil {
			s.log.Warnf("history query failed: %v", err)
		}
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if readings == nil {
		readings = []Reading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	latest, ok := s.Latest()

	h := Health{}
	if ok {
		at := latest.ReceivedAt
		h.LastAccepted = &at
	}
	if s.config.Alive != nil {
		h.Alive = s.config.Alive()
	} else {
		h.Alive = ok
	}

	code := http.StatusOK
	if !h.Alive {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
