package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/overtone-ai/overtone/internal/channel"
	"github.com/overtone-ai/overtone/internal/registry"
)

// session holds the issued credentials for one room-backed session. Close
// deletes the remote room best-effort: failures are logged, never
// propagated, so a dead room service cannot wedge local teardown.
type session struct {
	sessionID string
	roomName  string
	token     string
	serverURL string
	client    *Client
	logger    *slog.Logger
}

func (s *session) Close() error {
	if err := s.client.DeleteRoom(context.Background(), s.roomName); err != nil {
		s.logger.Error("room: error deleting room",
			"session_id", s.sessionID, "room", s.roomName, "error", err)
	}
	return nil
}

// connectionInfo is the negotiate response for room-backed sessions: the
// client connects to the room service directly with these credentials.
type connectionInfo struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// Channel is the managed-room strategy.
type Channel struct {
	client   *Client
	sessions *registry.Registry[*session]
	logger   *slog.Logger
}

var _ channel.Strategy = (*Channel)(nil)

// New returns a managed-room channel over the given client. A nil logger
// means slog.Default().
func New(client *Client, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		client:   client,
		sessions: registry.New[*session](),
		logger:   logger,
	}
}

// Name implements [channel.Strategy].
func (c *Channel) Name() string { return "managed-room" }

// CreateSession implements [channel.Strategy]. It creates a dedicated room
// on the service and issues an access token bound to the client identity.
func (c *Channel) CreateSession(ctx context.Context, clientID string) (string, error) {
	sessionID := uuid.NewString()
	roomName := "overtone-" + sessionID

	if err := c.client.CreateRoom(ctx, roomName); err != nil {
		return "", fmt.Errorf("room: create session for %q: %w", clientID, err)
	}
	token, err := c.client.AccessToken(roomName, clientID)
	if err != nil {
		if delErr := c.client.DeleteRoom(ctx, roomName); delErr != nil {
			c.logger.Error("room: error deleting room after token failure",
				"room", roomName, "error", delErr)
		}
		return "", fmt.Errorf("room: create session for %q: %w", clientID, err)
	}

	c.sessions.Put(sessionID, &session{
		sessionID: sessionID,
		roomName:  roomName,
		token:     token,
		serverURL: c.client.ServerURL(),
		client:    c.client,
		logger:    c.logger,
	})
	c.logger.Info("room: session created",
		"session_id", sessionID, "client_id", clientID, "room", roomName)
	return sessionID, nil
}

// Negotiate implements [channel.Strategy]. There is no SDP exchange; the
// previously issued credentials are returned as JSON connection info.
func (c *Channel) Negotiate(_ context.Context, sessionID, _ string) (string, error) {
	s, ok := c.sessions.Get(sessionID)
	if !ok {
		return "", fmt.Errorf("room: negotiate %q: %w", sessionID, channel.ErrSessionNotFound)
	}
	info, err := json.Marshal(connectionInfo{Token: s.token, URL: s.serverURL})
	if err != nil {
		return "", fmt.Errorf("room: marshal connection info: %w", err)
	}
	return string(info), nil
}

// AddRemoteCandidate implements [channel.Strategy]. ICE negotiation happens
// between the client and the room service; nothing to do here.
func (c *Channel) AddRemoteCandidate(_ context.Context, sessionID string, _ channel.Candidate) error {
	c.logger.Debug("room: candidate handling delegated to room service", "session_id", sessionID)
	return nil
}

// CloseSession implements [channel.Strategy].
func (c *Channel) CloseSession(sessionID string) error {
	if existed, _ := c.sessions.Delete(sessionID); existed {
		c.logger.Info("room: session closed", "session_id", sessionID)
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

// Available implements [channel.Strategy]. Room creation surfaces service
// failures per call; the strategy itself has no standing connection to
// probe.
func (c *Channel) Available() bool { return c.client != nil }

// SessionToken returns the access token issued for the session, or false
// when the session is unknown.
func (c *Channel) SessionToken(sessionID string) (string, bool) {
	s, ok := c.sessions.Get(sessionID)
	if !ok {
		return "", false
	}
	return s.token, true
}
