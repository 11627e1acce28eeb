package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/overtone-ai/overtone/internal/observe"
	"github.com/overtone-ai/overtone/internal/registry"
	"github.com/overtone-ai/overtone/pkg/provider/llm"
	"github.com/overtone-ai/overtone/pkg/provider/stt"
	"github.com/overtone-ai/overtone/pkg/provider/tts"
)

// ErrSessionBusy is returned when a new utterance arrives for a session
// whose previous turn has not reached its terminal event yet. The utterance
// is dropped rather than queued so that response events for two turns on one
// session can never interleave.
var ErrSessionBusy = errors.New("pipeline: session busy")

// conversation is per-session pipeline state: the in-flight marker and the
// bounded dialogue history fed to the generator.
type conversation struct {
	busy atomic.Bool

	mu    sync.Mutex
	turns []llm.Turn
}

func (c *conversation) Close() error { return nil }

// snapshot returns a copy of the dialogue history.
func (c *conversation) snapshot() []llm.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	turns := make([]llm.Turn, len(c.turns))
	copy(turns, c.turns)
	return turns
}

// record appends a completed user/assistant exchange, trimming the history
// to the newest maxTurns exchanges.
func (c *conversation) record(input, reply string, maxTurns int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns,
		llm.Turn{Role: llm.RoleUser, Content: input},
		llm.Turn{Role: llm.RoleAssistant, Content: reply},
	)
	if limit := 2 * maxTurns; maxTurns > 0 && len(c.turns) > limit {
		c.turns = c.turns[len(c.turns)-limit:]
	}
}

// Pipeline orchestrates the recognize, generate, and synthesize stages for
// completed utterances and direct text input. Turns for different sessions
// run fully in parallel; turns for the same session never overlap.
type Pipeline struct {
	recognizer  stt.Recognizer
	generator   llm.Generator
	synthesizer tts.Synthesizer

	sessions        *registry.Registry[*conversation]
	maxHistoryTurns int
	eventBuffer     int
	metrics         *observe.Metrics
	logger          *slog.Logger
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithMaxHistoryTurns bounds the dialogue history fed to the generator to
// the newest n user/assistant exchanges. Default 20.
func WithMaxHistoryTurns(n int) Option {
	return func(p *Pipeline) { p.maxHistoryTurns = n }
}

// WithEventBuffer sets the per-turn event channel depth. Default 16.
func WithEventBuffer(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.eventBuffer = n
		}
	}
}

// WithMetrics sets the metrics sink. Default observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New returns a pipeline over the given providers.
func New(recognizer stt.Recognizer, generator llm.Generator, synthesizer tts.Synthesizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		recognizer:      recognizer,
		generator:       generator,
		synthesizer:     synthesizer,
		sessions:        registry.New[*conversation](),
		maxHistoryTurns: 20,
		eventBuffer:     16,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// ProcessUtterance starts a turn for a completed utterance. It returns a
// channel that yields the turn's events in order and is closed after the
// terminal event. If the session already has a turn in flight the utterance
// is dropped and [ErrSessionBusy] is returned.
func (p *Pipeline) ProcessUtterance(ctx context.Context, sessionID string, utterance []byte) (<-chan Event, error) {
	return p.start(ctx, sessionID, utterance, "")
}

// ProcessText starts a turn for direct text input. The input skips the
// recognition stage but is still echoed as a recognized-text event so that
// consumers see a uniform stream. Returns [ErrSessionBusy] when a turn is
// already in flight for the session.
func (p *Pipeline) ProcessText(ctx context.Context, sessionID, text string) (<-chan Event, error) {
	return p.start(ctx, sessionID, nil, text)
}

func (p *Pipeline) start(ctx context.Context, sessionID string, utterance []byte, text string) (<-chan Event, error) {
	conv, _ := p.sessions.GetOrCreate(sessionID, func() *conversation { return &conversation{} })
	if !conv.busy.CompareAndSwap(false, true) {
		p.logger.Warn("pipeline: dropping input, session has a turn in flight", "session_id", sessionID)
		p.metrics.UtterancesDropped.Add(ctx, 1)
		return nil, ErrSessionBusy
	}

	events := make(chan Event, p.eventBuffer)
	go p.run(ctx, conv, sessionID, utterance, text, events)
	return events, nil
}

// run executes the stages of one turn and closes the event channel after
// the terminal event.
func (p *Pipeline) run(ctx context.Context, conv *conversation, sessionID string, utterance []byte, text string, events chan<- Event) {
	start := time.Now()
	defer func() {
		conv.busy.Store(false)
		close(events)
		p.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	}()

	input := text
	if utterance != nil {
		t0 := time.Now()
		recognized, err := p.recognizer.Recognize(ctx, utterance)
		p.metrics.RecognizeDuration.Record(ctx, time.Since(t0).Seconds())
		if err != nil {
			p.fail(ctx, sessionID, "recognize", err, events)
			return
		}
		input = recognized
	}
	if strings.TrimSpace(input) == "" {
		p.logger.Warn("pipeline: empty input, ending turn without a response", "session_id", sessionID)
		return
	}

	if !p.emit(ctx, events, Event{Kind: EventRecognizedText, SessionID: sessionID, Text: input}) {
		return
	}

	history := conv.snapshot()
	t0 := time.Now()
	reply, err := p.generator.Generate(ctx, input, history)
	p.metrics.GenerateDuration.Record(ctx, time.Since(t0).Seconds())
	if err != nil {
		// Terminal for this turn. Generation is not retried because the
		// generator may have performed side effects already.
		p.fail(ctx, sessionID, "generate", err, events)
		return
	}
	conv.record(input, reply, p.maxHistoryTurns)

	if !p.emit(ctx, events, Event{Kind: EventGeneratedText, SessionID: sessionID, Text: reply}) {
		return
	}

	t0 = time.Now()
	audio, err := p.synthesizer.Synthesize(ctx, reply)
	p.metrics.SynthesizeDuration.Record(ctx, time.Since(t0).Seconds())
	if err != nil {
		// The generated text stands; text-only consumers still got a usable
		// answer.
		p.fail(ctx, sessionID, "synthesize", err, events)
		return
	}

	p.emit(ctx, events, Event{Kind: EventSynthesizedAudio, SessionID: sessionID, Audio: audio})
}

// emit delivers ev, reporting false when the turn context was cancelled
// before delivery.
func (p *Pipeline) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		p.metrics.RecordEvent(ctx, ev.Kind.String())
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pipeline) fail(ctx context.Context, sessionID, stage string, err error, events chan<- Event) {
	p.logger.Error("pipeline: stage failed", "session_id", sessionID, "stage", stage, "error", err)
	p.metrics.RecordStageError(ctx, stage)
	p.emit(ctx, events, Event{Kind: EventError, SessionID: sessionID, Stage: stage, Err: err})
}

// History returns a copy of the session's dialogue history.
func (p *Pipeline) History(sessionID string) []llm.Turn {
	conv, ok := p.sessions.Get(sessionID)
	if !ok {
		return nil
	}
	return conv.snapshot()
}

// CloseSession discards all pipeline state for the session.
func (p *Pipeline) CloseSession(sessionID string) {
	p.sessions.Delete(sessionID)
}
