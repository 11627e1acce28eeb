package anyllm

import (
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/overtone-ai/overtone/pkg/provider/llm"
)

func TestBuildMessages(t *testing.T) {
	history := []llm.Turn{
		{Role: llm.RoleUser, Content: "turn left"},
		{Role: llm.RoleAssistant, Content: "turning left"},
	}
	got := buildMessages("You are a robot.", "now stop", history)

	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if got[0].Role != anyllmlib.RoleSystem || got[0].ContentString() != "You are a robot." {
		t.Errorf("system message = %+v", got[0])
	}
	if got[1].Role != anyllmlib.RoleUser || got[1].ContentString() != "turn left" {
		t.Errorf("history user message = %+v", got[1])
	}
	if got[2].Role != anyllmlib.RoleAssistant || got[2].ContentString() != "turning left" {
		t.Errorf("history assistant message = %+v", got[2])
	}
	if got[3].Role != anyllmlib.RoleUser || got[3].ContentString() != "now stop" {
		t.Errorf("input message = %+v", got[3])
	}
}

func TestBuildMessagesNoSystemPrompt(t *testing.T) {
	got := buildMessages("", "hello", nil)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Role != anyllmlib.RoleUser || got[0].ContentString() != "hello" {
		t.Errorf("message = %+v", got[0])
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New("", "gpt-4o-mini", nil); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("openai", "", nil); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestCreateBackendUnsupported(t *testing.T) {
	_, err := createBackend("clippy")
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if !strings.Contains(err.Error(), "clippy") {
		t.Errorf("error %q should name the provider", err)
	}
}
