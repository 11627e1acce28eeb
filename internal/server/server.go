// Package server exposes Overtone's HTTP surface: REST session lifecycle
// endpoints, the inline signaling WebSocket, health probes, and the metrics
// endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/overtone-ai/overtone/internal/channel"
	"github.com/overtone-ai/overtone/internal/health"
	"github.com/overtone-ai/overtone/internal/observe"
	"github.com/overtone-ai/overtone/internal/pipeline"
	"github.com/overtone-ai/overtone/internal/vad"
)

const shutdownTimeout = 10 * time.Second

// Server ties the channel strategy, the segmenter, and the orchestration
// pipeline to the HTTP surface.
type Server struct {
	addr             string
	signalingAddress string

	strategy  channel.Strategy
	segmenter *vad.Segmenter
	pipe      *pipeline.Pipeline

	health  *health.Handler
	metrics *observe.Metrics
	logger  *slog.Logger

	// active tracks sessions this server has opened and not yet torn down.
	// teardown claims an entry exactly once, so concurrent close paths
	// (explicit stop, socket close) release resources and adjust the
	// session gauge a single time.
	mu     sync.Mutex
	active map[string]struct{}
}

// Option configures a [Server].
type Option func(*Server)

// WithSignalingAddress sets the WebSocket URL advertised to clients when a
// session is started over REST. Default is "/ws" (same host).
func WithSignalingAddress(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.signalingAddress = addr
		}
	}
}

// WithMetrics sets the metrics sink. Default observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New returns a server listening on addr once [Server.Run] is called.
func New(addr string, strategy channel.Strategy, segmenter *vad.Segmenter, pipe *pipeline.Pipeline, opts ...Option) *Server {
	s := &Server{
		addr:             addr,
		signalingAddress: "/ws",
		strategy:         strategy,
		segmenter:        segmenter,
		pipe:             pipe,
		logger:           slog.Default(),
		active:           make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.health = health.New(health.Availability("channel:"+strategy.Name(), strategy.Available))
	return s
}

// Handler returns the full route table. API routes run through the
// observability middleware; the signaling socket, health probes, and metrics
// endpoint are mounted directly.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/sessions", s.handleStartSession)
	api.HandleFunc("DELETE /api/sessions/{id}", s.handleStopSession)
	api.HandleFunc("GET /api/sessions/{id}", s.handleSessionStatus)
	api.HandleFunc("POST /api/sessions/{id}/offer", s.handleOffer)
	api.HandleFunc("POST /api/sessions/{id}/candidates", s.handleCandidate)
	api.HandleFunc("POST /api/rooms/sessions", s.handleRoomSession)

	root := http.NewServeMux()
	root.Handle("/api/", observe.Middleware(s.metrics)(api))
	root.HandleFunc("GET /ws", s.handleSignaling)
	root.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(root)
	return root
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server: listening", "addr", s.addr, "channel", s.strategy.Name())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen on %q: %w", s.addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type startSessionRequest struct {
	ClientID string `json:"clientId"`
}

type startSessionResponse struct {
	SessionID        string `json:"sessionId"`
	SignalingAddress string `json:"signalingAddress,omitempty"`
	Status           string `json:"status"`
}

type sessionStatusResponse struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Active    bool   `json:"active"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.ClientID == "" {
		req.ClientID = "anonymous"
	}

	sessionID, err := s.strategy.CreateSession(r.Context(), req.ClientID)
	if err != nil {
		s.writeStrategyError(w, "create session", err)
		return
	}
	s.trackSession(r.Context(), sessionID)

	writeJSON(w, http.StatusOK, startSessionResponse{
		SessionID:        sessionID,
		SignalingAddress: s.signalingAddress,
		Status:           "started",
	})
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if !s.strategy.SessionExists(sessionID) {
		writeJSON(w, http.StatusNotFound, sessionStatusResponse{
			SessionID: sessionID, Status: "not_found", Active: false,
		})
		return
	}
	s.teardown(r.Context(), sessionID)
	writeJSON(w, http.StatusOK, sessionStatusResponse{
		SessionID: sessionID, Status: "stopped", Active: false,
	})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if !s.strategy.SessionExists(sessionID) {
		writeJSON(w, http.StatusNotFound, sessionStatusResponse{
			SessionID: sessionID, Status: "not_found", Active: false,
		})
		return
	}
	writeJSON(w, http.StatusOK, sessionStatusResponse{
		SessionID: sessionID, Status: "active", Active: true,
	})
}

type offerRequest struct {
	SDPOffer string `json:"sdpOffer"`
}

type offerResponse struct {
	SDPAnswer string `json:"sdpAnswer"`
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SDPOffer == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing sdpOffer"})
		return
	}
	answer, err := s.strategy.Negotiate(r.Context(), sessionID, req.SDPOffer)
	if err != nil {
		s.writeStrategyError(w, "negotiate", err)
		return
	}
	writeJSON(w, http.StatusOK, offerResponse{SDPAnswer: answer})
}

func (s *Server) handleCandidate(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	var cand channel.Candidate
	if err := json.NewDecoder(r.Body).Decode(&cand); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid candidate body"})
		return
	}
	if err := s.strategy.AddRemoteCandidate(r.Context(), sessionID, cand); err != nil {
		s.writeStrategyError(w, "add candidate", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type roomSessionResponse struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
	URL       string `json:"url"`
}

// handleRoomSession starts a session on a room-backed channel and returns
// the credentials the client uses to connect to the room service directly.
func (s *Server) handleRoomSession(w http.ResponseWriter, r *http.Request) {
	if s.strategy.Name() != "managed-room" {
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: "active channel does not issue room credentials",
		})
		return
	}
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.ClientID == "" {
		req.ClientID = "anonymous"
	}

	sessionID, err := s.strategy.CreateSession(r.Context(), req.ClientID)
	if err != nil {
		s.writeStrategyError(w, "create room session", err)
		return
	}
	s.trackSession(r.Context(), sessionID)

	raw, err := s.strategy.Negotiate(r.Context(), sessionID, "")
	if err != nil {
		s.teardown(r.Context(), sessionID)
		s.writeStrategyError(w, "room negotiate", err)
		return
	}
	var info struct {
		Token string `json:"token"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		s.teardown(r.Context(), sessionID)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "malformed connection info"})
		return
	}
	writeJSON(w, http.StatusOK, roomSessionResponse{
		SessionID: sessionID,
		Token:     info.Token,
		URL:       info.URL,
	})
}

// trackSession records a newly created session for teardown accounting.
func (s *Server) trackSession(ctx context.Context, sessionID string) {
	s.mu.Lock()
	s.active[sessionID] = struct{}{}
	s.mu.Unlock()
	s.metrics.ActiveSessions.Add(ctx, 1)
}

// teardown funnels every close path (explicit stop, socket close, transport
// error) into one idempotent release of channel, segmenter, and pipeline
// state. The first caller claims the session's tracking entry; later or
// concurrent callers return without touching resources or the gauge.
func (s *Server) teardown(ctx context.Context, sessionID string) {
	s.mu.Lock()
	_, tracked := s.active[sessionID]
	delete(s.active, sessionID)
	s.mu.Unlock()
	if !tracked {
		return
	}

	if err := s.strategy.CloseSession(sessionID); err != nil {
		s.logger.Error("server: error closing channel session", "session_id", sessionID, "error", err)
	}
	s.segmenter.Reset(sessionID)
	s.pipe.CloseSession(sessionID)
	s.metrics.ActiveSessions.Add(ctx, -1)
}

// writeStrategyError reports a strategy failure without leaking wrapped
// internal errors; the underlying error goes to the log.
func (s *Server) writeStrategyError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, channel.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
	case errors.Is(err, channel.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "backend unavailable"})
	default:
		s.logger.Error("server: "+op+" failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// The status line is already out; an encode failure here can only be
	// logged by the caller's middleware, not reported to the client.
	_ = json.NewEncoder(w).Encode(v)
}
