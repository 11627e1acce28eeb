// Package room implements the channel strategy backed by an external room
// service. The service manages named rooms and relays media itself; this
// process only creates a room per session and issues a signed access token
// that the client uses to connect to the service directly. No SDP or ICE
// exchange passes through here.
package room

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = time.Hour

// Client talks to the room service's admin REST API and signs access
// tokens with the shared API secret.
type Client struct {
	serverURL  string
	apiKey     string
	apiSecret  string
	tokenTTL   time.Duration
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithTokenTTL bounds the validity of issued access tokens. Default 1h.
func WithTokenTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.tokenTTL = ttl
		}
	}
}

// WithHTTPClient sets the HTTP client used for admin calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient returns a room service client. serverURL is the client-facing
// WebSocket URL of the service (e.g. "wss://rooms.example.com"); admin
// calls use its HTTP equivalent.
func NewClient(serverURL, apiKey, apiSecret string, opts ...Option) *Client {
	c := &Client{
		serverURL:  serverURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		tokenTTL:   defaultTokenTTL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ServerURL returns the client-facing URL of the room service.
func (c *Client) ServerURL() string { return c.serverURL }

// httpBase converts the configured WebSocket URL to its HTTP form for admin
// calls.
func (c *Client) httpBase() string {
	switch {
	case strings.HasPrefix(c.serverURL, "wss://"):
		return "https://" + strings.TrimPrefix(c.serverURL, "wss://")
	case strings.HasPrefix(c.serverURL, "ws://"):
		return "http://" + strings.TrimPrefix(c.serverURL, "ws://")
	}
	return c.serverURL
}

// CreateRoom creates a named room on the service.
func (c *Client) CreateRoom(ctx context.Context, name string) error {
	return c.adminCall(ctx, "CreateRoom", map[string]string{"name": name})
}

// DeleteRoom deletes a named room, disconnecting its participants.
func (c *Client) DeleteRoom(ctx context.Context, name string) error {
	return c.adminCall(ctx, "DeleteRoom", map[string]string{"room": name})
}

// adminCall posts a JSON body to the room service's RoomService RPC
// endpoint, authenticated with a short-lived admin token.
func (c *Client) adminCall(ctx context.Context, method string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("room: marshal %s request: %w", method, err)
	}

	token, err := c.adminToken()
	if err != nil {
		return err
	}

	url := c.httpBase() + "/twirp/livekit.RoomService/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("room: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("room: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("room: %s returned status %d: %s", method, resp.StatusCode, excerpt)
	}
	return nil
}

// AccessToken issues a signed token granting identity the right to join the
// given room, valid for the configured TTL.
func (c *Client) AccessToken(roomName, identity string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": c.apiKey,
		"sub": identity,
		"nbf": now.Unix(),
		"exp": now.Add(c.tokenTTL).Unix(),
		"video": map[string]any{
			"room":     roomName,
			"roomJoin": true,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.apiSecret))
	if err != nil {
		return "", fmt.Errorf("room: sign access token: %w", err)
	}
	return token, nil
}

// adminToken issues a short-lived token authorizing room management calls.
func (c *Client) adminToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": c.apiKey,
		"nbf": now.Unix(),
		"exp": now.Add(time.Minute).Unix(),
		"video": map[string]any{
			"roomCreate": true,
			"roomList":   true,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.apiSecret))
	if err != nil {
		return "", fmt.Errorf("room: sign admin token: %w", err)
	}
	return token, nil
}
