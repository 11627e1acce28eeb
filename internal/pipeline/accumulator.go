package pipeline

import (
	"bytes"

	"github.com/overtone-ai/overtone/internal/vad"
)

// SpeechAccumulator collects the audio frames of one utterance as driven by
// segmenter events. It belongs to a single session and is not safe for
// concurrent use; the transport's in-order frame delivery serializes access.
type SpeechAccumulator struct {
	buf    bytes.Buffer
	active bool
}

// Feed applies one frame and its segmenter event to the accumulator. On an
// end event it returns the complete utterance and true, and resets itself
// for the next utterance. Frames that arrive outside an utterance are
// discarded.
func (a *SpeechAccumulator) Feed(event vad.Event, frame []byte) ([]byte, bool) {
	switch event {
	case vad.EventStart:
		a.buf.Reset()
		a.buf.Write(frame)
		a.active = true
	case vad.EventNone:
		if a.active {
			a.buf.Write(frame)
		}
	case vad.EventEnd:
		a.buf.Write(frame)
		utterance := make([]byte, a.buf.Len())
		copy(utterance, a.buf.Bytes())
		a.buf.Reset()
		a.active = false
		return utterance, true
	}
	return nil, false
}

// Active reports whether an utterance is currently being collected.
func (a *SpeechAccumulator) Active() bool {
	return a.active
}

// Reset discards any partially collected utterance.
func (a *SpeechAccumulator) Reset() {
	a.buf.Reset()
	a.active = false
}
