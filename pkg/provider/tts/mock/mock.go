// Package mock provides a test double for the tts.Synthesizer interface.
package mock

import (
	"context"
	"sync"

	"github.com/overtone-ai/overtone/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesizer.Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// Audio is returned by every Synthesize call. Defaults to a short
	// placeholder payload when nil.
	Audio []byte

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Ensure Synthesizer implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesize records the call and returns Audio, Err.
func (s *Synthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SynthesizeCalls = append(s.SynthesizeCalls, SynthesizeCall{Text: text})
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Audio == nil {
		return []byte("audio"), nil
	}
	return s.Audio, nil
}

// Calls returns a snapshot of recorded calls. Thread-safe.
func (s *Synthesizer) Calls() []SynthesizeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SynthesizeCall, len(s.SynthesizeCalls))
	copy(out, s.SynthesizeCalls)
	return out
}
