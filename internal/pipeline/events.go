// Package pipeline turns completed utterances (or direct text input) into an
// ordered stream of conversation events: recognized text, generated text,
// synthesized audio, or an error. The stages call out to pluggable
// recognizer, generator, and synthesizer providers.
package pipeline

// EventKind identifies the type of a pipeline event.
type EventKind int

const (
	// EventRecognizedText carries the transcription of a completed
	// utterance, or the echoed text of a direct text input.
	EventRecognizedText EventKind = iota

	// EventGeneratedText carries the generated response text.
	EventGeneratedText

	// EventSynthesizedAudio carries the synthesized response audio.
	EventSynthesizedAudio

	// EventError reports a failed stage. It is always the last event of its
	// turn.
	EventError
)

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventRecognizedText:
		return "recognized-text"
	case EventGeneratedText:
		return "generated-text"
	case EventSynthesizedAudio:
		return "synthesized-audio"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one element of a turn's event stream. For a successful turn the
// stream is recognized-text, generated-text, synthesized-audio, in that
// order; a failed stage replaces the remainder of the stream with a single
// error event.
type Event struct {
	Kind      EventKind
	SessionID string

	// Text is set for recognized-text and generated-text events.
	Text string

	// Audio is set for synthesized-audio events.
	Audio []byte

	// Stage names the failed stage for error events: "recognize",
	// "generate", or "synthesize". Transports use it to pick a client-facing
	// message; Err stays server-side.
	Stage string

	// Err is set for error events.
	Err error
}
