// Package vad segments a per-session audio stream into utterances with a
// threshold-plus-hysteresis state machine over per-frame speech
// probabilities.
package vad

import (
	"context"
	"log/slog"

	"github.com/overtone-ai/overtone/internal/registry"
	"github.com/overtone-ai/overtone/pkg/provider/score"
	"github.com/overtone-ai/overtone/pkg/provider/score/energy"
)

// Event is the segmenter's classification of one audio frame.
type Event int

const (
	// EventNone means no boundary was crossed by this frame.
	EventNone Event = iota

	// EventStart marks the first speech frame of a new utterance.
	EventStart

	// EventEnd marks the frame on which enough trailing silence has
	// accumulated to close the current utterance.
	EventEnd
)

// String returns the event name for logging.
func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventEnd:
		return "end"
	default:
		return "none"
	}
}

type state struct {
	speaking      bool
	silenceFrames int
}

func (s *state) Close() error { return nil }

// Segmenter classifies audio frames per session. Calls for different
// sessions proceed in parallel; calls for the same session must be
// serialized by the caller, which the transport's in-order delivery
// already guarantees.
type Segmenter struct {
	scorer    score.Scorer
	fallback  score.Scorer
	threshold float64

	// framesToEnd is how many consecutive sub-threshold frames close an
	// utterance, derived from the configured silence duration and frame
	// duration.
	framesToEnd int

	sessions *registry.Registry[*state]
	logger   *slog.Logger
}

// Option configures a [Segmenter].
type Option func(*Segmenter)

// WithThreshold sets the speech probability threshold. Default 0.5.
func WithThreshold(t float64) Option {
	return func(s *Segmenter) { s.threshold = t }
}

// WithSilenceWindow sets the trailing-silence window that ends an
// utterance, as a silence duration and a frame duration in milliseconds.
// Default 500ms of 50ms frames.
func WithSilenceWindow(minSilenceMs, frameMs int) Option {
	return func(s *Segmenter) {
		if frameMs > 0 {
			s.framesToEnd = minSilenceMs / frameMs
		}
	}
}

// WithFallback sets the scorer used to re-score a frame when the primary
// scorer fails. Default is the energy heuristic.
func WithFallback(f score.Scorer) Option {
	return func(s *Segmenter) { s.fallback = f }
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Segmenter) { s.logger = l }
}

// New returns a segmenter scoring frames with the given scorer.
func New(scorer score.Scorer, opts ...Option) *Segmenter {
	s := &Segmenter{
		scorer:      scorer,
		fallback:    energy.New(),
		threshold:   0.5,
		framesToEnd: 10,
		sessions:    registry.New[*state](),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.framesToEnd < 1 {
		s.framesToEnd = 1
	}
	return s
}

// Detect classifies one audio frame for the given session and returns the
// boundary event it produces. Detect never fails: a scorer error demotes
// that single frame to the fallback heuristic, and a fallback error scores
// the frame as silence.
func (s *Segmenter) Detect(ctx context.Context, sessionID string, frame []byte) Event {
	p, err := s.scorer.Score(ctx, frame)
	if err != nil {
		s.logger.Warn("vad: scorer failed, re-scoring frame with fallback",
			"session_id", sessionID, "error", err)
		p, err = s.fallback.Score(ctx, frame)
		if err != nil {
			s.logger.Warn("vad: fallback scorer failed, treating frame as silence",
				"session_id", sessionID, "error", err)
			p = 0
		}
	}

	st, _ := s.sessions.GetOrCreate(sessionID, func() *state { return &state{} })

	speech := p > s.threshold
	switch {
	case speech && !st.speaking:
		st.speaking = true
		st.silenceFrames = 0
		return EventStart
	case speech && st.speaking:
		st.silenceFrames = 0
		return EventNone
	case !speech && st.speaking:
		st.silenceFrames++
		if st.silenceFrames >= s.framesToEnd {
			st.speaking = false
			st.silenceFrames = 0
			return EventEnd
		}
		return EventNone
	default:
		st.silenceFrames = 0
		return EventNone
	}
}

// Reset discards all segmentation state for the session. The next frame
// for that session is classified from a not-speaking state.
func (s *Segmenter) Reset(sessionID string) {
	s.sessions.Delete(sessionID)
}

// ClearAll discards segmentation state for every session.
func (s *Segmenter) ClearAll() {
	s.sessions.CloseAll()
}
