// Package openai provides a Recognizer backed by the OpenAI audio
// transcription API (Whisper). It implements the stt.Recognizer interface.
//
// The pipeline hands over raw PCM; the API expects a container format, so each
// utterance is wrapped in a minimal WAV header before upload.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/overtone-ai/overtone/pkg/provider/stt"
)

const (
	defaultModel      = "whisper-1"
	defaultSampleRate = 16000
)

// Compile-time interface assertion.
var _ stt.Recognizer = (*Recognizer)(nil)

// config holds optional configuration for the recognizer.
type config struct {
	baseURL    string
	model      string
	language   string
	sampleRate int
	timeout    time.Duration
}

// Option is a functional option for Recognizer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Use this to target an
// OpenAI-compatible local Whisper server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the transcription model. Default is "whisper-1".
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithLanguage sets the ISO-639-1 language hint (e.g., "en", "de").
// Empty lets the model auto-detect.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithSampleRate sets the PCM sample rate in Hz of incoming utterances.
// Default is 16000.
func WithSampleRate(rate int) Option {
	return func(c *config) { c.sampleRate = rate }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// Recognizer implements stt.Recognizer using the OpenAI API.
type Recognizer struct {
	client     oai.Client
	model      string
	language   string
	sampleRate int
}

// New constructs a Recognizer. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Recognizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{
		model:      defaultModel,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Recognizer{
		client:     oai.NewClient(reqOpts...),
		model:      cfg.model,
		language:   cfg.language,
		sampleRate: cfg.sampleRate,
	}, nil
}

// Recognize wraps the PCM utterance in a WAV container and submits it for
// transcription.
func (r *Recognizer) Recognize(ctx context.Context, utterance []byte) (string, error) {
	if len(utterance) == 0 {
		return "", fmt.Errorf("openai: utterance must not be empty")
	}

	wav := wrapWAV(utterance, r.sampleRate)

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
		Model: oai.AudioModel(r.model),
	}
	if r.language != "" {
		params.Language = oai.String(r.language)
	}

	resp, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcribe: %w", err)
	}

	return resp.Text, nil
}
