// Package channel defines the transport strategy abstraction that owns
// session lifecycles: how sessions are created, how media negotiation is
// answered, and how sessions are torn down. Three implementations exist
// under this package: inline (signaling and audio over one WebSocket),
// mediaserver (an external media server handles negotiation and relay), and
// room (an external room service that clients connect to directly).
//
// The active strategy is selected once at startup from configuration; the
// rest of the system only ever talks to the [Strategy] interface.
package channel

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned when an operation references a session ID
// the strategy does not know.
var ErrSessionNotFound = errors.New("channel: session not found")

// ErrUnavailable is returned when the strategy's external backend is
// currently unreachable.
var ErrUnavailable = errors.New("channel: backend unavailable")

// Candidate is a trickle ICE candidate relayed from the client.
type Candidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
}

// Strategy is the common session/transport lifecycle interface.
//
// CloseSession is idempotent: closing an unknown or already-closed session
// returns nil without touching any resources.
type Strategy interface {
	// CreateSession allocates transport resources for a new session and
	// returns its generated session ID.
	CreateSession(ctx context.Context, clientID string) (string, error)

	// Negotiate answers the client's SDP offer. Depending on the strategy
	// the result is a real SDP answer, a synthetic one, or a JSON blob of
	// connection info the client uses to connect elsewhere.
	Negotiate(ctx context.Context, sessionID, offer string) (string, error)

	// AddRemoteCandidate forwards a trickle ICE candidate for the session.
	// Strategies without a separate ICE path treat this as a no-op.
	AddRemoteCandidate(ctx context.Context, sessionID string, c Candidate) error

	// CloseSession releases the session's transport resources.
	CloseSession(sessionID string) error

	// SessionExists reports whether the strategy knows the session ID.
	SessionExists(sessionID string) bool

	// ActiveSessionCount returns the number of live sessions.
	ActiveSessionCount() int

	// Available reports whether the strategy can currently serve new
	// sessions.
	Available() bool

	// Name returns the strategy's configuration name.
	Name() string
}
