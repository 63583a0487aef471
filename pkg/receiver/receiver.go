package receiver

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/coldremote/pkg/discovery"
	"github.com/backkem/coldremote/pkg/message"
	"github.com/backkem/coldremote/pkg/metrics"
	"github.com/backkem/coldremote/pkg/pipeline"
	"github.com/backkem/coldremote/pkg/reading"
	"github.com/backkem/coldremote/pkg/status"
	"github.com/backkem/coldremote/pkg/store"
	"github.com/backkem/coldremote/pkg/transport"
)

// statusShutdownTimeout bounds how long Stop waits for in-flight HTTP requests.
const statusShutdownTimeout = 5 * time.Second

// Receiver is a running telemetry receiver. It owns the radio socket, the
// reception pipeline, and the outer surfaces fed by accepted readings.
type Receiver struct {
	config Config
	state  State
	log    logging.LeveledLogger

	metrics    *metrics.Metrics
	store      *store.Store
	pipeline   *pipeline.Pipeline
	udp        *transport.UDP
	status     *status.Server
	advertiser *discovery.Advertiser
	watchdog   *watchdog

	frames chan []byte

	latestMu  sync.RWMutex
	latest    status.Reading
	hasLatest bool

	mu       sync.RWMutex
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a receiver with the given configuration.
// The receiver is created but not started. Call Start to begin receiving.
func New(config Config) (*Receiver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(config.Key) != message.KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", message.ErrInvalidKey, len(config.Key))
	}

	config.applyDefaults()

	reasons := make([]string, len(pipeline.Reasons))
	for i, reason := range pipeline.Reasons {
		reasons[i] = reason.String()
	}

	r := &Receiver{
		config:   config,
		state:    StateInitialized,
		metrics:  metrics.New(reasons),
		watchdog: newWatchdog(config.WatchdogTimeout, config.Clock()),
		frames:   make(chan []byte, config.QueueSize),
		stopCh:   make(chan struct{}),
	}

	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("receiver")
	}

	return r, nil
}

// Start brings up storage, the pipeline loop, the radio socket, the status
// server and mDNS, in that order.
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.CanStart() {
		if r.state.IsRunning() {
			return ErrAlreadyStarted
		}
		return ErrNotInitialized
	}

	r.state = StateStarting
	r.ctx, r.cancel = context.WithCancel(ctx)

	if err := r.startStore(); err != nil {
		r.abortStart()
		return err
	}

	if err := r.startPipeline(); err != nil {
		r.abortStart()
		return err
	}

	if err := r.startTransport(); err != nil {
		r.abortStart()
		return err
	}

	if err := r.startStatus(); err != nil {
		r.abortStart()
		return err
	}

	if err := r.startDiscovery(); err != nil {
		r.abortStart()
		return err
	}

	// Frames queued since the transport started are drained from here on.
	r.wg.Add(1)
	go r.loop(r.ctx)

	r.state = StateRunning

	if r.log != nil {
		r.log.Infof("receiver started, radio=%s length-mode=%s", r.udp.LocalAddr(), r.config.LengthMode)
	}

	if r.config.OnStateChanged != nil {
		r.config.OnStateChanged(r.state)
	}

	return nil
}

// abortStart tears down whatever Start brought up and leaves the receiver
// stopped. Components are single use.
func (r *Receiver) abortStart() {
	r.shutdown()
	r.state = StateStopped
}

func (r *Receiver) startStore() error {
	if r.config.StorePath == "" {
		return nil
	}

	s, err := store.Open(store.Config{
		Path:       r.config.StorePath,
		MaxRecords: r.config.MaxRecords,
	})
	if err != nil {
		return err
	}
	r.store = s
	return nil
}

func (r *Receiver) startPipeline() error {
	p, err := pipeline.New(pipeline.Config{
		Key:            r.config.Key,
		LengthMode:     r.config.LengthMode,
		MaxFrameSize:   r.config.MaxFrameSize,
		MaxMessageSize: r.config.MaxMessageSize,
		ByteOrder:      r.config.ByteOrder,
		OnAccepted:     r.onAccepted,
		OnRejected:     r.onRejected,
		Clock:          r.config.Clock,
		LoggerFactory:  r.config.LoggerFactory,
	})
	if err != nil {
		return err
	}
	r.pipeline = p
	r.watchdog.reset(r.config.Clock())
	r.metrics.SetAlive(false)
	return nil
}

func (r *Receiver) startTransport() error {
	var conn net.PacketConn
	var err error

	if r.config.TransportFactory != nil {
		// Use injected transport (for testing)
		conn, err = r.config.TransportFactory.CreateUDPConn(listenPort(r.config.ListenAddr))
		if err != nil {
			return err
		}
	}

	r.udp, err = transport.NewUDP(transport.UDPConfig{
		Conn:          conn,
		ListenAddr:    r.config.ListenAddr,
		FrameHandler:  r.enqueue,
		LoggerFactory: r.config.LoggerFactory,
	})
	if err != nil {
		return err
	}
	return r.udp.Start()
}

func (r *Receiver) startStatus() error {
	if r.config.DisableStatus {
		return nil
	}

	cfg := status.Config{
		ListenAddr:    r.config.StatusAddr,
		Listener:      r.config.StatusListener,
		Alive:         r.Alive,
		Metrics:       r.metrics.Handler(),
		LoggerFactory: r.config.LoggerFactory,
	}
	if r.store != nil {
		cfg.History = r.history
	}

	r.status = status.New(cfg)
	if err := r.status.Start(); err != nil {
		r.status = nil
		return err
	}
	return nil
}

func (r *Receiver) startDiscovery() error {
	if !r.config.Advertise {
		return nil
	}
	if r.status == nil {
		if r.log != nil {
			r.log.Warn("mDNS advertisement needs the status server, skipping")
		}
		return nil
	}

	a, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
		Instance:      r.config.Instance,
		Port:          r.status.Port(),
		TXT:           discovery.StatusTXT{Path: discovery.DefaultPath},
		ServerFactory: r.config.MDNSServerFactory,
		LoggerFactory: r.config.LoggerFactory,
	})
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		return err
	}
	r.advertiser = a
	return nil
}

// Stop shuts the receiver down in the reverse order of Start.
func (r *Receiver) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.CanStop() {
		if r.state == StateStopped {
			return ErrAlreadyStopped
		}
		return ErrNotStarted
	}

	r.state = StateStopping
	r.shutdown()
	r.state = StateStopped

	if r.log != nil {
		r.log.Info("receiver stopped")
	}

	if r.config.OnStateChanged != nil {
		r.config.OnStateChanged(r.state)
	}

	return nil
}

func (r *Receiver) shutdown() {
	if r.advertiser != nil {
		r.advertiser.Close()
	}

	if r.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), statusShutdownTimeout)
		if err := r.status.Stop(ctx); err != nil && r.log != nil {
			r.log.Warnf("status server shutdown: %v", err)
		}
		cancel()
	}

	if r.udp != nil {
		r.udp.Stop()
	}

	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.cancel != nil {
			r.cancel()
		}
	})
	r.wg.Wait()

	if r.store != nil {
		if err := r.store.Close(); err != nil && r.log != nil {
			r.log.Warnf("closing store: %v", err)
		}
	}
}

// enqueue hands a datagram from the transport to the pipeline loop. It never
// blocks the read loop. Frames are dropped when the queue is full.
func (r *Receiver) enqueue(frame *transport.ReceivedFrame) {
	r.metrics.FrameReceived()

	select {
	case r.frames <- frame.Data:
	default:
		r.metrics.FrameDropped()
		if r.log != nil {
			r.log.Warnf("frame queue full, dropping frame from %s", frame.Source)
		}
	}
}

// loop is the only goroutine that touches the pipeline.
func (r *Receiver) loop(ctx context.Context) {
	defer r.wg.Done()

	var tick <-chan time.Time
	if r.watchdog.enabled() {
		ticker := time.NewTicker(r.config.WatchdogInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case frame := <-r.frames:
			// Rejections are reported through onRejected.
			_, _ = r.pipeline.HandleFrame(frame)
		case <-tick:
			r.checkWatchdog()
		}
	}
}

func (r *Receiver) checkWatchdog() {
	now := r.config.Clock()
	if !r.watchdog.check(now) {
		return
	}
	r.metrics.SetAlive(false)
	if r.log != nil {
		r.log.Warnf("no data from the radio link for %s", r.watchdog.silentFor(now).Truncate(time.Second))
	}
}

func (r *Receiver) onAccepted(a pipeline.Accepted) {
	alarm := r.config.Limits.Check(a.Reading)
	latest := status.Reading{
		Sequence:    a.Sequence,
		Temperature: a.Reading.Temperature,
		Latitude:    a.Reading.Latitude,
		Longitude:   a.Reading.Longitude,
		ReceivedAt:  a.ReceivedAt,
		Alarm:       alarm.String(),
	}

	r.latestMu.Lock()
	r.latest = latest
	r.hasLatest = true
	r.latestMu.Unlock()

	if r.status != nil {
		r.status.SetLatest(latest)
	}

	if r.store != nil {
		_, err := r.store.Put(store.Record{
			Sequence:    a.Sequence,
			Temperature: a.Reading.Temperature,
			Latitude:    a.Reading.Latitude,
			Longitude:   a.Reading.Longitude,
			ReceivedAt:  a.ReceivedAt,
			Alarm:       alarm.String(),
		})
		if err != nil {
			r.metrics.StoreError()
			if r.log != nil {
				r.log.Warnf("storing reading seq=%d: %v", a.Sequence, err)
			}
		}
	}

	r.metrics.Accepted(a.Sequence, a.Reading.Temperature, a.ReceivedAt)
	r.metrics.SetAlive(true)

	if r.watchdog.feed(a.ReceivedAt) && r.log != nil {
		r.log.Info("radio link recovered")
	}

	if r.log != nil {
		r.log.Infof("accepted seq=%d %s fragments=%d", a.Sequence, a.Reading, a.Fragments)
	}

	if alarm != reading.AlarmNone {
		r.metrics.Alarm(alarm.String())
		if r.log != nil {
			r.log.Warnf("temperature alarm %s: %.2f °C outside [%.2f, %.2f]",
				alarm, a.Reading.Temperature, r.config.Limits.Min, r.config.Limits.Max)
		}
	}

	if r.config.OnAccepted != nil {
		r.config.OnAccepted(a)
	}
}

func (r *Receiver) onRejected(rej *pipeline.Rejection) {
	r.metrics.Rejected(rej.Reason.String())

	if r.log != nil {
		if rej.Reason == pipeline.ReasonSequenceMismatch {
			r.log.Debugf("rejected: %v", rej)
		} else {
			r.log.Warnf("rejected: %v", rej)
		}
	}

	if r.config.OnRejected != nil {
		r.config.OnRejected(rej)
	}
}

func (r *Receiver) history(limit int) ([]status.Reading, error) {
	records, err := r.store.List(limit)
	if err != nil {
		return nil, err
	}
	out := make([]status.Reading, len(records))
	for i, rec := range records {
		out[i] = status.Reading{
			Sequence:    rec.Sequence,
			Temperature: rec.Temperature,
			Latitude:    rec.Latitude,
			Longitude:   rec.Longitude,
			ReceivedAt:  rec.ReceivedAt,
			Alarm:       rec.Alarm,
		}
	}
	return out, nil
}

// State returns the current lifecycle state.
func (r *Receiver) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Alive reports whether a reading was accepted within the watchdog timeout.
func (r *Receiver) Alive() bool {
	return r.watchdog.alive(r.config.Clock())
}

// Latest returns the last accepted reading, and false before the first.
func (r *Receiver) Latest() (status.Reading, bool) {
	r.latestMu.RLock()
	defer r.latestMu.RUnlock()
	return r.latest, r.hasLatest
}

// Metrics returns the receiver's metrics.
func (r *Receiver) Metrics() *metrics.Metrics {
	return r.metrics
}

// RadioAddr returns the address frames are read from, or nil before Start.
func (r *Receiver) RadioAddr() net.Addr {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.udp == nil {
		return nil
	}
	return r.udp.LocalAddr()
}

// RadioStats returns the radio socket counters, zero before Start.
func (r *Receiver) RadioStats() transport.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.udp == nil {
		return transport.Stats{}
	}
	return r.udp.Stats()
}

// StatusAddr returns the status server address, or nil when it is not running.
func (r *Receiver) StatusAddr() net.Addr {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.status == nil {
		return nil
	}
	return r.status.Addr()
}

func listenPort(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return transport.DefaultPort
	}
	n, err := strconv.Atoi(port)
	if err != nil || n == 0 {
		return transport.DefaultPort
	}
	return n
}
