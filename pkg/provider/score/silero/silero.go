// Package silero provides a speech scorer backed by a Silero VAD inference
// service. It implements the score.Scorer interface.
//
// The service speaks a minimal WebSocket protocol: the client sends one binary
// message containing a raw little-endian 16-bit PCM frame and receives one JSON
// text message {"probability": p} in reply. Silero models keep internal state
// per stream on the server side, keyed by connection, so a single connection is
// shared by all sessions and the exchange is serialised client-side.
package silero

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/overtone-ai/overtone/pkg/provider/score"
)

const (
	defaultDialTimeout  = 10 * time.Second
	defaultScoreTimeout = 2 * time.Second
)

// Compile-time interface assertion.
var _ score.Scorer = (*Scorer)(nil)

// Option is a functional option for configuring a Scorer.
type Option func(*Scorer)

// WithScoreTimeout bounds a single Score round trip. Default is 2s.
func WithScoreTimeout(d time.Duration) Option {
	return func(s *Scorer) { s.scoreTimeout = d }
}

// scoreResult is the JSON reply from the inference service.
type scoreResult struct {
	Probability float64 `json:"probability"`
}

// Scorer implements score.Scorer against a remote Silero inference service.
// It is safe for concurrent use; round trips on the shared connection are
// serialised internally.
type Scorer struct {
	scoreTimeout time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// New dials the inference service at wsURL and returns a ready Scorer.
// Returns an error if the service cannot be reached, in which case callers
// should fall back to the energy scorer.
func New(ctx context.Context, wsURL string, opts ...Option) (*Scorer, error) {
	if wsURL == "" {
		return nil, fmt.Errorf("silero: wsURL must not be empty")
	}

	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("silero: dial %q: %w", wsURL, err)
	}

	s := &Scorer{
		conn:         conn,
		scoreTimeout: defaultScoreTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Score sends frame to the inference service and returns the reported speech
// probability. Returns an error if the scorer is closed, the frame is empty,
// or the round trip fails.
func (s *Scorer) Score(ctx context.Context, frame []byte) (float64, error) {
	if len(frame) == 0 {
		return 0, fmt.Errorf("silero: empty frame")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("silero: scorer is closed")
	}

	rtCtx, cancel := context.WithTimeout(ctx, s.scoreTimeout)
	defer cancel()

	if err := s.conn.Write(rtCtx, websocket.MessageBinary, frame); err != nil {
		return 0, fmt.Errorf("silero: send frame: %w", err)
	}

	_, data, err := s.conn.Read(rtCtx)
	if err != nil {
		return 0, fmt.Errorf("silero: read result: %w", err)
	}

	var res scoreResult
	if err := json.Unmarshal(data, &res); err != nil {
		return 0, fmt.Errorf("silero: decode result: %w", err)
	}
	if res.Probability < 0 || res.Probability > 1 {
		return 0, fmt.Errorf("silero: probability %v out of range", res.Probability)
	}

	return res.Probability, nil
}

// Close tears down the connection to the inference service. Calling Close more
// than once is safe and returns nil.
func (s *Scorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close(websocket.StatusNormalClosure, "client closing")
}
