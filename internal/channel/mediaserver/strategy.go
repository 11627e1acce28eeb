package mediaserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/overtone-ai/overtone/internal/channel"
	"github.com/overtone-ai/overtone/internal/registry"
)

// session holds the media server resources backing one session. Close
// releases the endpoint before the pipeline; release failures are logged
// and swallowed so that teardown never leaves the registry inconsistent.
type session struct {
	sessionID  string
	pipelineID string
	endpointID string
	backend    Backend
	logger     *slog.Logger
}

func (s *session) Close() error {
	ctx := context.Background()
	if err := s.backend.ReleaseEndpoint(ctx, s.endpointID); err != nil {
		s.logger.Error("mediaserver: error releasing endpoint",
			"session_id", s.sessionID, "endpoint_id", s.endpointID, "error", err)
	}
	if err := s.backend.ReleasePipeline(ctx, s.pipelineID); err != nil {
		s.logger.Error("mediaserver: error releasing pipeline",
			"session_id", s.sessionID, "pipeline_id", s.pipelineID, "error", err)
	}
	return nil
}

// Channel is the managed-media strategy. Each session owns a pipeline and
// an endpoint on the external media server; availability tracks the
// supervisor's connection state.
type Channel struct {
	supervisor *Supervisor
	sessions   *registry.Registry[*session]
	logger     *slog.Logger
}

var _ channel.Strategy = (*Channel)(nil)

// New returns a managed-media channel over the supervised control
// connection. A nil logger means slog.Default().
func New(supervisor *Supervisor, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		supervisor: supervisor,
		sessions:   registry.New[*session](),
		logger:     logger,
	}
}

// Name implements [channel.Strategy].
func (c *Channel) Name() string { return "managed-media" }

// CreateSession implements [channel.Strategy]. It allocates a pipeline and
// an endpoint on the media server.
func (c *Channel) CreateSession(ctx context.Context, clientID string) (string, error) {
	backend, err := c.supervisor.Backend()
	if err != nil {
		return "", err
	}

	sessionID := uuid.NewString()
	pipelineID, err := backend.CreatePipeline(ctx)
	if err != nil {
		return "", fmt.Errorf("mediaserver: create pipeline for %q: %w", clientID, err)
	}
	endpointID, err := backend.CreateEndpoint(ctx, pipelineID)
	if err != nil {
		if relErr := backend.ReleasePipeline(ctx, pipelineID); relErr != nil {
			c.logger.Error("mediaserver: error releasing pipeline after endpoint failure",
				"pipeline_id", pipelineID, "error", relErr)
		}
		return "", fmt.Errorf("mediaserver: create endpoint for %q: %w", clientID, err)
	}

	c.sessions.Put(sessionID, &session{
		sessionID:  sessionID,
		pipelineID: pipelineID,
		endpointID: endpointID,
		backend:    backend,
		logger:     c.logger,
	})
	c.logger.Info("mediaserver: session created",
		"session_id", sessionID, "client_id", clientID, "pipeline_id", pipelineID)
	return sessionID, nil
}

// Negotiate implements [channel.Strategy]. The offer is forwarded to the
// session's endpoint; local candidate gathering starts once the answer is
// produced.
func (c *Channel) Negotiate(ctx context.Context, sessionID, offer string) (string, error) {
	s, ok := c.sessions.Get(sessionID)
	if !ok {
		return "", fmt.Errorf("mediaserver: negotiate %q: %w", sessionID, channel.ErrSessionNotFound)
	}
	answer, err := s.backend.ProcessOffer(ctx, s.endpointID, offer)
	if err != nil {
		return "", fmt.Errorf("mediaserver: process offer for %q: %w", sessionID, err)
	}
	if err := s.backend.GatherCandidates(ctx, s.endpointID); err != nil {
		return "", fmt.Errorf("mediaserver: gather candidates for %q: %w", sessionID, err)
	}
	return answer, nil
}

// AddRemoteCandidate implements [channel.Strategy].
func (c *Channel) AddRemoteCandidate(ctx context.Context, sessionID string, cand channel.Candidate) error {
	s, ok := c.sessions.Get(sessionID)
	if !ok {
		c.logger.Warn("mediaserver: candidate for unknown session", "session_id", sessionID)
		return fmt.Errorf("mediaserver: add candidate %q: %w", sessionID, channel.ErrSessionNotFound)
	}
	if err := s.backend.AddCandidate(ctx, s.endpointID, cand.Candidate, cand.SDPMid, cand.SDPMLineIndex); err != nil {
		return fmt.Errorf("mediaserver: add candidate for %q: %w", sessionID, err)
	}
	return nil
}

// CloseSession implements [channel.Strategy]. Release failures on the media
// server are logged, not propagated.
func (c *Channel) CloseSession(sessionID string) error {
	if existed, _ := c.sessions.Delete(sessionID); existed {
		c.logger.Info("mediaserver: session closed", "session_id", sessionID)
	}
	return nil
}

// SessionExists implements [channel.Strategy].
func (c *Channel) SessionExists(sessionID string) bool {
	_, ok := c.sessions.Get(sessionID)
	return ok
}

// ActiveSessionCount implements [channel.Strategy].
func (c *Channel) ActiveSessionCount() int { return c.sessions.Len() }

// Available implements [channel.Strategy].
func (c *Channel) Available() bool { return c.supervisor.Connected() }
