package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/overtone-ai/overtone/internal/observe"
	"github.com/overtone-ai/overtone/pkg/provider/llm"
	llmmock "github.com/overtone-ai/overtone/pkg/provider/llm/mock"
	sttmock "github.com/overtone-ai/overtone/pkg/provider/stt/mock"
	ttsmock "github.com/overtone-ai/overtone/pkg/provider/tts/mock"
)

func testPipeline(t *testing.T, rec *sttmock.Recognizer, gen *llmmock.Generator, syn *ttsmock.Synthesizer, opts ...Option) *Pipeline {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithMetrics(m), WithLogger(logger)}, opts...)
	return New(rec, gen, syn, opts...)
}

func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out draining events")
		}
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestProcessUtteranceEmitsOrderedEvents(t *testing.T) {
	rec := &sttmock.Recognizer{Text: "hello there"}
	gen := &llmmock.Generator{Reply: "hi, how can I help?"}
	syn := &ttsmock.Synthesizer{Audio: []byte("wav-bytes")}
	p := testPipeline(t, rec, gen, syn)

	events, err := p.ProcessUtterance(context.Background(), "s1", []byte("pcm"))
	if err != nil {
		t.Fatalf("ProcessUtterance: %v", err)
	}
	got := drain(t, events)

	want := []EventKind{EventRecognizedText, EventGeneratedText, EventSynthesizedAudio}
	if len(got) != len(want) {
		t.Fatalf("got %d events (%v), want %d", len(got), kinds(got), len(want))
	}
	for i, k := range want {
		if got[i].Kind != k {
			t.Errorf("event %d kind = %v, want %v", i, got[i].Kind, k)
		}
		if got[i].SessionID != "s1" {
			t.Errorf("event %d session = %q, want s1", i, got[i].SessionID)
		}
	}
	if got[0].Text != "hello there" {
		t.Errorf("recognized text = %q", got[0].Text)
	}
	if got[1].Text != "hi, how can I help?" {
		t.Errorf("generated text = %q", got[1].Text)
	}
	if !bytes.Equal(got[2].Audio, []byte("wav-bytes")) {
		t.Errorf("audio = %q", got[2].Audio)
	}
}

func TestProcessTextEchoesInputAsRecognized(t *testing.T) {
	rec := &sttmock.Recognizer{}
	gen := &llmmock.Generator{Reply: "reply"}
	syn := &ttsmock.Synthesizer{}
	p := testPipeline(t, rec, gen, syn)

	events, err := p.ProcessText(context.Background(), "s1", "typed input")
	if err != nil {
		t.Fatalf("ProcessText: %v", err)
	}
	got := drain(t, events)

	if len(got) != 3 || got[0].Kind != EventRecognizedText || got[0].Text != "typed input" {
		t.Fatalf("events = %v, want recognized-text echo first", kinds(got))
	}
	if len(rec.Calls()) != 0 {
		t.Error("recognizer was called for text input")
	}
}

func TestRecognitionFailureEmitsErrorOnly(t *testing.T) {
	rec := &sttmock.Recognizer{Err: errors.New("transcription failed")}
	gen := &llmmock.Generator{Reply: "reply"}
	syn := &ttsmock.Synthesizer{}
	p := testPipeline(t, rec, gen, syn)

	events, err := p.ProcessUtterance(context.Background(), "s1", []byte("pcm"))
	if err != nil {
		t.Fatalf("ProcessUtterance: %v", err)
	}
	got := drain(t, events)

	if len(got) != 1 || got[0].Kind != EventError {
		t.Fatalf("events = %v, want single error", kinds(got))
	}
	if got[0].Stage != "recognize" {
		t.Errorf("stage = %q, want recognize", got[0].Stage)
	}
	if len(gen.Calls()) != 0 {
		t.Error("generator was called after recognition failure")
	}
}

func TestEmptyTranscriptionEndsTurnSilently(t *testing.T) {
	rec := &sttmock.Recognizer{Text: "   "}
	gen := &llmmock.Generator{Reply: "reply"}
	syn := &ttsmock.Synthesizer{}
	p := testPipeline(t, rec, gen, syn)

	events, err := p.ProcessUtterance(context.Background(), "s1", []byte("pcm"))
	if err != nil {
		t.Fatalf("ProcessUtterance: %v", err)
	}
	got := drain(t, events)

	if len(got) != 0 {
		t.Fatalf("events = %v, want none for empty transcription", kinds(got))
	}
	if len(gen.Calls()) != 0 {
		t.Error("generator was called for empty transcription")
	}
}

func TestGenerationFailureIsTerminal(t *testing.T) {
	rec := &sttmock.Recognizer{Text: "hello"}
	gen := &llmmock.Generator{Err: errors.New("model overloaded")}
	syn := &ttsmock.Synthesizer{}
	p := testPipeline(t, rec, gen, syn)

	events, err := p.ProcessUtterance(context.Background(), "s1", []byte("pcm"))
	if err != nil {
		t.Fatalf("ProcessUtterance: %v", err)
	}
	got := drain(t, events)

	want := []EventKind{EventRecognizedText, EventError}
	if len(got) != 2 || got[0].Kind != want[0] || got[1].Kind != want[1] {
		t.Fatalf("events = %v, want %v", kinds(got), want)
	}
	if got[1].Stage != "generate" {
		t.Errorf("stage = %q, want generate", got[1].Stage)
	}
	// One attempt only.
	if len(gen.Calls()) != 1 {
		t.Errorf("generator called %d times, want 1", len(gen.Calls()))
	}
	if len(syn.Calls()) != 0 {
		t.Error("synthesizer was called after generation failure")
	}
	if len(p.History("s1")) != 0 {
		t.Error("failed turn was recorded in history")
	}
}

func TestSynthesisFailureKeepsGeneratedText(t *testing.T) {
	rec := &sttmock.Recognizer{Text: "hello"}
	gen := &llmmock.Generator{Reply: "the answer"}
	syn := &ttsmock.Synthesizer{Err: errors.New("tts server down")}
	p := testPipeline(t, rec, gen, syn)

	events, err := p.ProcessUtterance(context.Background(), "s1", []byte("pcm"))
	if err != nil {
		t.Fatalf("ProcessUtterance: %v", err)
	}
	got := drain(t, events)

	want := []EventKind{EventRecognizedText, EventGeneratedText, EventError}
	if len(got) != 3 {
		t.Fatalf("events = %v, want %v", kinds(got), want)
	}
	for i, k := range want {
		if got[i].Kind != k {
			t.Errorf("event %d kind = %v, want %v", i, got[i].Kind, k)
		}
	}
	if got[1].Text != "the answer" {
		t.Errorf("generated text = %q, want preserved answer", got[1].Text)
	}
	// The exchange still counts toward history.
	if len(p.History("s1")) != 2 {
		t.Errorf("history length = %d, want 2", len(p.History("s1")))
	}
}

func TestBusySessionDropsNewUtterance(t *testing.T) {
	release := make(chan struct{})
	rec := &sttmock.Recognizer{Text: "hello"}
	gen := &llmmock.Generator{ReplyFunc: func(input string) string {
		<-release
		return "reply"
	}}
	syn := &ttsmock.Synthesizer{}
	p := testPipeline(t, rec, gen, syn)

	events, err := p.ProcessUtterance(context.Background(), "s1", []byte("pcm"))
	if err != nil {
		t.Fatalf("first ProcessUtterance: %v", err)
	}
	// Wait for the first turn to reach the blocking generation stage.
	<-events

	if _, err := p.ProcessUtterance(context.Background(), "s1", []byte("pcm2")); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("second ProcessUtterance error = %v, want ErrSessionBusy", err)
	}

	// A different session is unaffected.
	other, err := p.ProcessUtterance(context.Background(), "s2", []byte("pcm"))
	if err != nil {
		t.Errorf("other session ProcessUtterance: %v", err)
	}

	close(release)
	drain(t, events)
	if other != nil {
		drain(t, other)
	}

	// Once the turn finished the session accepts input again.
	events, err = p.ProcessUtterance(context.Background(), "s1", []byte("pcm3"))
	if err != nil {
		t.Fatalf("ProcessUtterance after turn finished: %v", err)
	}
	drain(t, events)
}

func TestHistoryIsBoundedAndOrdered(t *testing.T) {
	rec := &sttmock.Recognizer{Text: "hello"}
	gen := &llmmock.Generator{ReplyFunc: func(input string) string { return "re: " + input }}
	syn := &ttsmock.Synthesizer{}
	p := testPipeline(t, rec, gen, syn, WithMaxHistoryTurns(2))

	for i := 0; i < 4; i++ {
		events, err := p.ProcessText(context.Background(), "s1", "message")
		if err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
		drain(t, events)
	}

	hist := p.History("s1")
	if len(hist) != 4 {
		t.Fatalf("history length = %d, want 4 (2 turns of 2 entries)", len(hist))
	}
	if hist[0].Role != llm.RoleUser || hist[1].Role != llm.RoleAssistant {
		t.Errorf("history roles = %v %v, want user then assistant", hist[0].Role, hist[1].Role)
	}

	// The generator sees history from before the current turn.
	calls := gen.Calls()
	last := calls[len(calls)-1]
	if len(last.History) != 4 {
		t.Errorf("generator saw %d history entries on last turn, want 4", len(last.History))
	}
}

func TestCloseSessionDiscardsHistory(t *testing.T) {
	rec := &sttmock.Recognizer{Text: "hello"}
	gen := &llmmock.Generator{Reply: "reply"}
	syn := &ttsmock.Synthesizer{}
	p := testPipeline(t, rec, gen, syn)

	events, err := p.ProcessText(context.Background(), "s1", "message")
	if err != nil {
		t.Fatalf("ProcessText: %v", err)
	}
	drain(t, events)

	p.CloseSession("s1")
	if len(p.History("s1")) != 0 {
		t.Error("history survived CloseSession")
	}
}

func TestSessionsRunInParallel(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	rec := &sttmock.Recognizer{Text: "hello"}
	gen := &llmmock.Generator{ReplyFunc: func(input string) string {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return "reply"
	}}
	syn := &ttsmock.Synthesizer{}
	p := testPipeline(t, rec, gen, syn)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			events, err := p.ProcessText(context.Background(), string(rune('a'+n)), "message")
			if err != nil {
				t.Errorf("session %d: %v", n, err)
				return
			}
			drain(t, events)
		}(i)
	}
	wg.Wait()

	if maxInFlight < 2 {
		t.Errorf("max concurrent generations = %d, want at least 2", maxInFlight)
	}
}
