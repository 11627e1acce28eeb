// Package mock provides a test double for the llm.Generator interface.
package mock

import (
	"context"
	"sync"

	"github.com/overtone-ai/overtone/pkg/provider/llm"
)

// GenerateCall records a single invocation of Generator.Generate.
type GenerateCall struct {
	// Input is the text passed to Generate.
	Input string

	// History is a copy of the conversation history passed to Generate.
	History []llm.Turn
}

// Generator is a mock implementation of llm.Generator.
type Generator struct {
	mu sync.Mutex

	// Reply is returned by every Generate call. If ReplyFunc is set it takes
	// precedence.
	Reply string

	// ReplyFunc, if non-nil, computes the reply from the input.
	ReplyFunc func(input string) string

	// Err, if non-nil, is returned by every Generate call.
	Err error

	// GenerateCalls records every call to Generate in order.
	GenerateCalls []GenerateCall
}

// Ensure Generator implements llm.Generator at compile time.
var _ llm.Generator = (*Generator)(nil)

// Generate records the call and returns the configured reply.
func (g *Generator) Generate(_ context.Context, input string, history []llm.Turn) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	hist := make([]llm.Turn, len(history))
	copy(hist, history)
	g.GenerateCalls = append(g.GenerateCalls, GenerateCall{Input: input, History: hist})
	if g.Err != nil {
		return "", g.Err
	}
	if g.ReplyFunc != nil {
		return g.ReplyFunc(input), nil
	}
	return g.Reply, nil
}

// Calls returns a snapshot of recorded calls. Thread-safe.
func (g *Generator) Calls() []GenerateCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GenerateCall, len(g.GenerateCalls))
	copy(out, g.GenerateCalls)
	return out
}
