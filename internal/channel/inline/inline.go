// Package inline implements the channel strategy where signaling and binary
// audio share one WebSocket connection handled in-process. Negotiation
// returns a minimal synthetic SDP answer since no media-level peer
// connection is established; audio flows as raw frames over the socket that
// carried the offer.
package inline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/overtone-ai/overtone/internal/channel"
	"github.com/overtone-ai/overtone/internal/registry"
)

type session struct {
	clientID string
}

func (s *session) Close() error { return nil }

// Channel is the inline strategy. Session creation is local bookkeeping
// only, candidates are ignored, and the strategy is always available.
type Channel struct {
	sessions *registry.Registry[*session]
	logger   *slog.Logger
}

var _ channel.Strategy = (*Channel)(nil)

// New returns an inline channel. A nil logger means slog.Default().
func New(logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		sessions: registry.New[*session](),
		logger:   logger,
	}
}

// Name implements [channel.Strategy].
func (c *Channel) Name() string { return "inline" }

// CreateSession implements [channel.Strategy].
func (c *Channel) CreateSession(_ context.Context, clientID string) (string, error) {
	sessionID := uuid.NewString()
	c.sessions.Put(sessionID, &session{clientID: clientID})
	c.logger.Info("inline: session created", "session_id", sessionID, "client_id", clientID)
	return sessionID, nil
}

// Negotiate implements [channel.Strategy]. The returned answer is synthetic;
// audio actually travels as binary frames over the signaling socket.
func (c *Channel) Negotiate(_ context.Context, sessionID, _ string) (string, error) {
	if _, ok := c.sessions.Get(sessionID); !ok {
		return "", fmt.Errorf("inline: negotiate %q: %w", sessionID, channel.ErrSessionNotFound)
	}
	return syntheticAnswer(), nil
}

// AddRemoteCandidate implements [channel.Strategy]. No separate ICE path
// exists, so candidates are acknowledged and dropped.
func (c *Channel) AddRemoteCandidate(_ context.Context, sessionID string, _ channel.Candidate) error {
	if _, ok := c.sessions.Get(sessionID); !ok {
		c.logger.Warn("inline: candidate for unknown session", "session_id", sessionID)
	}
	return nil
}

// CloseSession implements [channel.Strategy].
func (c *Channel) CloseSession(sessionID string) error {
	if existed, _ := c.sessions.Delete(sessionID); existed {
		c.logger.Info("inline: session closed", "session_id", sessionID)
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

// Available implements [channel.Strategy]. The inline strategy has no
// external dependency.
func (c *Channel) Available() bool { return true }

// syntheticAnswer builds the minimal SDP answer returned to clients. The
// zero media port signals that no RTP transport is set up.
func syntheticAnswer() string {
	return "v=0\r\n" +
		fmt.Sprintf("o=- %d 2 IN IP4 127.0.0.1\r\n", time.Now().UnixMilli()) +
		"s=Inline Audio Session\r\n" +
		"t=0 0\r\n" +
		"m=audio 0 UDP/TLS/RTP/SAVPF 111\r\n" +
		"a=mid:audio\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n"
}
