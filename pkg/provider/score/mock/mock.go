// Package mock provides a test double for the score.Scorer interface.
//
// Use Scorer with a scripted probability sequence to drive the segmenter state
// machine deterministically, or set Err to exercise fallback paths.
//
// Example:
//
//	sc := &mock.Scorer{Probabilities: []float64{0.9, 0.9, 0.1}}
//	p, _ := sc.Score(ctx, frame) // 0.9, then 0.9, then 0.1, then repeats the last
package mock

import (
	"context"
	"sync"

	"github.com/overtone-ai/overtone/pkg/provider/score"
)

// ScoreCall records a single invocation of Scorer.Score.
type ScoreCall struct {
	// Frame is a copy of the bytes passed to Score.
	Frame []byte
}

// Scorer is a mock implementation of score.Scorer.
type Scorer struct {
	mu sync.Mutex

	// Probabilities is the scripted sequence of return values. Each Score call
	// consumes the next entry; once exhausted, the last entry is repeated.
	// An empty slice makes Score return 0.
	Probabilities []float64

	// Err, if non-nil, is returned by every Score call.
	Err error

	// FailFirst makes the first FailFirst calls return Err (which must be set)
	// and subsequent calls succeed. Zero disables this behaviour.
	FailFirst int

	// ScoreCalls records every call to Score in order.
	ScoreCalls []ScoreCall

	next int
}

// Ensure Scorer implements score.Scorer at compile time.
var _ score.Scorer = (*Scorer)(nil)

// Score records the call and returns the next scripted probability.
func (s *Scorer) Score(_ context.Context, frame []byte) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.ScoreCalls = append(s.ScoreCalls, ScoreCall{Frame: cp})

	call := len(s.ScoreCalls)
	if s.Err != nil && (s.FailFirst == 0 || call <= s.FailFirst) {
		return 0, s.Err
	}

	if len(s.Probabilities) == 0 {
		return 0, nil
	}
	p := s.Probabilities[s.next]
	if s.next < len(s.Probabilities)-1 {
		s.next++
	}
	return p, nil
}

// Reset clears all recorded calls and rewinds the probability sequence.
func (s *Scorer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ScoreCalls = nil
	s.next = 0
}
