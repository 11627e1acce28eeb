// Package stt defines the Recognizer interface for Speech-to-Text backends.
//
// Overtone's pipeline is turn-based: the segmenter delimits a complete
// utterance before recognition starts, so the contract is a single
// request/response call rather than a streaming session. An implementation
// wraps a transcription service (e.g., the OpenAI Whisper API or a local
// Whisper server) behind this one method.
//
// Implementations must be safe for concurrent use; utterances from many
// sessions are recognised in parallel against one shared Recognizer.
package stt

import "context"

// Recognizer is the abstraction over any speech-to-text backend.
type Recognizer interface {
	// Recognize transcribes a complete utterance of raw little-endian 16-bit
	// PCM audio and returns the recognised text. An empty string with a nil
	// error is a valid result (the audio contained no intelligible speech).
	//
	// Returns an error if the utterance is empty, the backend is unreachable,
	// or transcription fails; the caller converts the failure into a
	// per-session error event, never a crash.
	Recognize(ctx context.Context, utterance []byte) (string, error)
}
