// Package mock provides a test double for the stt.Recognizer interface.
package mock

import (
	"context"
	"sync"

	"github.com/overtone-ai/overtone/pkg/provider/stt"
)

// RecognizeCall records a single invocation of Recognizer.Recognize.
type RecognizeCall struct {
	// Utterance is a copy of the bytes passed to Recognize.
	Utterance []byte
}

// Recognizer is a mock implementation of stt.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// Text is returned by every Recognize call.
	Text string

	// Err, if non-nil, is returned by every Recognize call.
	Err error

	// RecognizeCalls records every call to Recognize in order.
	RecognizeCalls []RecognizeCall
}

// Ensure Recognizer implements stt.Recognizer at compile time.
var _ stt.Recognizer = (*Recognizer)(nil)

// Recognize records the call and returns Text, Err.
func (r *Recognizer) Recognize(_ context.Context, utterance []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]byte, len(utterance))
	copy(cp, utterance)
	r.RecognizeCalls = append(r.RecognizeCalls, RecognizeCall{Utterance: cp})
	if r.Err != nil {
		return "", r.Err
	}
	return r.Text, nil
}

// Calls returns a snapshot of recorded calls. Thread-safe.
func (r *Recognizer) Calls() []RecognizeCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecognizeCall, len(r.RecognizeCalls))
	copy(out, r.RecognizeCalls)
	return out
}
