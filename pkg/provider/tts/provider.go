// Package tts defines the Synthesizer interface for Text-to-Speech backends.
//
// A synthesizer wraps a speech synthesis service (e.g., a local Coqui TTS
// server or a hosted API) behind a single turn-based call: response text in,
// encoded audio out. Overtone delivers whole responses rather than token
// streams, so the contract is batch, not streaming.
//
// Implementations must be safe for concurrent use; responses for many sessions
// are synthesised in parallel against one shared Synthesizer.
package tts

import "context"

// Synthesizer is the abstraction over any text-to-speech backend.
type Synthesizer interface {
	// Synthesize renders text as audio and returns the encoded bytes. The
	// encoding is provider-specific (typically WAV); the transport forwards
	// the bytes opaquely.
	//
	// Returns an error if text is empty, the backend is unreachable, or
	// synthesis fails. A synthesis failure does not invalidate the text
	// response already delivered for the same turn.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
