// Package energy provides a dependency-free speech scorer based on average
// sample magnitude. It implements the score.Scorer interface.
//
// The heuristic normalises the mean absolute value of the int16 samples by the
// int16 range, yielding a pseudo-probability in [0, 1]. It is far less accurate
// than a model-based scorer but has no external dependencies and never fails on
// well-formed input, which makes it the permanent fallback when a model scorer
// is unavailable.
package energy

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/overtone-ai/overtone/pkg/provider/score"
)

// bytesPerSample is the width of one little-endian int16 PCM sample.
const bytesPerSample = 2

// Compile-time interface assertion.
var _ score.Scorer = (*Scorer)(nil)

// Scorer implements score.Scorer using normalised average magnitude.
// The zero value is ready to use; Scorer is stateless and safe for concurrent use.
type Scorer struct{}

// New creates an energy Scorer.
func New() *Scorer {
	return &Scorer{}
}

// Score returns the mean absolute int16 magnitude of frame divided by 32768.
// A frame that is not a whole number of samples is truncated to the last
// complete sample. Returns an error only for an empty or sub-sample frame.
func (s *Scorer) Score(_ context.Context, frame []byte) (float64, error) {
	n := len(frame) / bytesPerSample
	if n == 0 {
		return 0, fmt.Errorf("energy: frame too short: %d bytes", len(frame))
	}

	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(frame[i*bytesPerSample:]))
		if sample < 0 {
			sum -= float64(sample)
		} else {
			sum += float64(sample)
		}
	}

	return sum / float64(n) / 32768.0, nil
}
