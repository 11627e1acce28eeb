// Package score defines the Scorer interface for frame-level speech
// probability backends.
//
// A scorer answers one narrow question: how likely is it that a single audio
// frame contains speech? The voice-activity segmenter owns all session state
// (hysteresis counters, speaking flags) and calls the scorer once per frame,
// so implementations are stateless with respect to sessions and must be safe
// for concurrent use across streams.
//
// Two implementations ship with Overtone: score/silero, which forwards frames
// to a Silero-style inference service, and score/energy, a dependency-free
// average-magnitude heuristic used as the degraded-mode fallback.
package score

import "context"

// Scorer estimates the speech probability of a single audio frame.
//
// Implementations must be safe for concurrent use: the segmenter may score
// frames for many sessions in parallel against one shared Scorer.
type Scorer interface {
	// Score returns the probability in [0.0, 1.0] that frame contains speech.
	// The frame is raw little-endian 16-bit PCM at the sample rate the scorer
	// was configured with.
	//
	// Returns an error if the frame cannot be scored (empty input, inference
	// failure, backend unreachable). Callers decide the fallback policy; a
	// scoring error must never carry partial results.
	Score(ctx context.Context, frame []byte) (float64, error)
}
