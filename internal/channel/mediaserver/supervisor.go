package mediaserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/overtone-ai/overtone/internal/channel"
	"github.com/overtone-ai/overtone/internal/observe"
)

const (
	defaultProbeInterval  = 30 * time.Second
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 60 * time.Second
)

// DialFunc opens a new control connection to the media server.
type DialFunc func(ctx context.Context) (Backend, error)

// Supervisor maintains the media server control connection. It probes the
// connection periodically and reconnects with exponential backoff, so a
// briefly unreachable server makes the strategy unavailable instead of
// crashing the process, and recovery is automatic without retry storms.
type Supervisor struct {
	dial          DialFunc
	probeInterval time.Duration
	initialDelay  time.Duration
	maxDelay      time.Duration
	logger        *slog.Logger
	metrics       *observe.Metrics

	mu          sync.Mutex
	backend     Backend
	connected   bool
	delay       time.Duration
	lastAttempt time.Time
}

// SupervisorOption configures a [Supervisor].
type SupervisorOption func(*Supervisor)

// WithProbeInterval sets the health-probe period. Default 30s.
func WithProbeInterval(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.probeInterval = d }
}

// WithBackoff sets the reconnect backoff range. The delay starts at initial,
// doubles per failed attempt, and is capped at maxDelay. Default 1s to 60s.
func WithBackoff(initial, maxDelay time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		s.initialDelay = initial
		s.maxDelay = maxDelay
	}
}

// WithSupervisorLogger sets the logger. Default slog.Default().
func WithSupervisorLogger(l *slog.Logger) SupervisorOption {
	return func(s *Supervisor) { s.logger = l }
}

// WithSupervisorMetrics sets the metrics sink. Default observe.DefaultMetrics().
func WithSupervisorMetrics(m *observe.Metrics) SupervisorOption {
	return func(s *Supervisor) { s.metrics = m }
}

// NewSupervisor returns a supervisor that opens connections with dial. It
// does not connect until [Supervisor.Run] is called.
func NewSupervisor(dial DialFunc, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		dial:          dial,
		probeInterval: defaultProbeInterval,
		initialDelay:  defaultInitialBackoff,
		maxDelay:      defaultMaxBackoff,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.delay = s.initialDelay
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Run connects immediately, then probes every probe interval until ctx is
// cancelled. A failed initial connection is not fatal; the strategy stays
// unavailable until a later attempt succeeds.
func (s *Supervisor) Run(ctx context.Context) {
	s.mu.Lock()
	s.connect(ctx)
	s.mu.Unlock()

	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.teardownLocked()
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Probe performs one health check cycle: ping the current connection, and
// on failure (or while disconnected) attempt a backoff-gated reconnect.
func (s *Supervisor) Probe(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend != nil {
		err := s.backend.Ping(ctx)
		if err == nil {
			if !s.connected {
				s.logger.Info("mediaserver: connection restored")
				s.connected = true
				s.delay = s.initialDelay
			}
			return
		}
		s.logger.Warn("mediaserver: health check failed", "error", err)
		s.connected = false
	}
	s.reconnectLocked(ctx)
}

// reconnectLocked attempts a reconnect if the current backoff delay has
// elapsed since the last attempt. Caller holds s.mu.
func (s *Supervisor) reconnectLocked(ctx context.Context) {
	if time.Since(s.lastAttempt) < s.delay {
		return
	}
	s.lastAttempt = time.Now()
	s.logger.Info("mediaserver: attempting reconnect", "backoff", s.delay)

	// The old connection is torn down before a new one is created.
	s.teardownLocked()
	s.connect(ctx)

	if s.connected {
		s.metrics.RecordReconnect(ctx, "success")
	} else {
		s.metrics.RecordReconnect(ctx, "failure")
		s.delay = minDuration(s.delay*2, s.maxDelay)
	}
}

// connect dials a new backend. Caller holds s.mu.
func (s *Supervisor) connect(ctx context.Context) {
	backend, err := s.dial(ctx)
	if err != nil {
		s.logger.Warn("mediaserver: connect failed, media sessions unavailable until retry", "error", err)
		s.backend = nil
		s.connected = false
		return
	}
	s.backend = backend
	s.connected = true
	s.delay = s.initialDelay
	s.logger.Info("mediaserver: connected")
}

// teardownLocked closes and discards the current backend. Caller holds s.mu.
func (s *Supervisor) teardownLocked() {
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			s.logger.Debug("mediaserver: error closing old connection", "error", err)
		}
		s.backend = nil
	}
	s.connected = false
}

// Connected reports whether the control connection is currently healthy.
func (s *Supervisor) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Backend returns the current control connection, or [channel.ErrUnavailable]
// while disconnected.
func (s *Supervisor) Backend() (Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected || s.backend == nil {
		return nil, fmt.Errorf("mediaserver: %w", channel.ErrUnavailable)
	}
	return s.backend, nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
