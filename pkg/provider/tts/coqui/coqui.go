// Package coqui provides a Synthesizer backed by a Coqui TTS server via its
// REST API. It implements the tts.Synthesizer interface.
//
// The adapter targets the standard Coqui TTS server (ghcr.io/coqui-ai/tts-cpu):
// synthesis is performed via GET /api/tts with URL query parameters and returns
// a WAV body.
//
// Typical usage:
//
//	s := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("en"),
//	    coqui.WithTimeout(15*time.Second),
//	)
//	audio, err := s.Synthesize(ctx, "Hello there.")
package coqui

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/overtone-ai/overtone/pkg/provider/tts"
)

const (
	defaultTimeout = 30 * time.Second
	ttsEndpoint    = "/api/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// Option is a functional option for configuring a Synthesizer.
type Option func(*Synthesizer)

// WithLanguage sets the language_id query parameter for multilingual models.
func WithLanguage(lang string) Option {
	return func(s *Synthesizer) { s.language = lang }
}

// WithSpeaker sets the speaker_id query parameter for multi-speaker models.
func WithSpeaker(speaker string) Option {
	return func(s *Synthesizer) { s.speaker = speaker }
}

// WithTimeout sets the per-request HTTP timeout. Default is 30s.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) { s.client.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client. Mainly useful in tests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Synthesizer) { s.client = c }
}

// Synthesizer implements tts.Synthesizer against a Coqui TTS server.
type Synthesizer struct {
	baseURL  string
	language string
	speaker  string
	client   *http.Client
}

// New creates a Synthesizer targeting the Coqui server at baseURL
// (e.g., "http://localhost:5002").
func New(baseURL string, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("coqui: text must not be empty")
	}

	q := url.Values{}
	q.Set("text", text)
	if s.speaker != "" {
		q.Set("speaker_id", s.speaker)
	}
	if s.language != "" {
		q.Set("language_id", s.language)
	}

	reqURL := s.baseURL + ttsEndpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coqui: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("coqui: server returned empty audio")
	}

	return audio, nil
}
