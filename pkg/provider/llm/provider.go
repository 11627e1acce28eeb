// Package llm defines the Generator interface for response-generation backends.
//
// A generator wraps a Large Language Model API (OpenAI, Anthropic, a local
// Ollama instance, …) behind a single turn-based call: given the user's input
// and the session's conversation history, produce the assistant's reply. The
// orchestration pipeline never sees SDK types, streaming chunks, or tool
// calls. It is only text in, text out.
//
// Implementations must be safe for concurrent use from multiple goroutines and
// must propagate context cancellation promptly.
package llm

import "context"

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn authored by the human participant.
	RoleUser Role = "user"

	// RoleAssistant marks a turn authored by the generator.
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a session's conversation history, oldest first.
type Turn struct {
	// Role is the author of this turn.
	Role Role

	// Content is the turn's text.
	Content string
}

// Generator is the abstraction over any response-generation backend.
type Generator interface {
	// Generate produces the assistant's reply to input given the preceding
	// conversation history (oldest turn first; input itself is not part of
	// history). Implementations may apply a configured system prompt.
	//
	// Failures are terminal for the turn: the caller reports an error event
	// and does not retry, since the backend may have performed side effects.
	Generate(ctx context.Context, input string, history []Turn) (string, error)
}
