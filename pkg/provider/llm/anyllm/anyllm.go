// Package anyllm provides a universal response generator backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	g, err := anyllm.New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-..."))
//	reply, err := g.Generate(ctx, "hello", nil)
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/overtone-ai/overtone/pkg/provider/llm"
)

// Compile-time interface assertion.
var _ llm.Generator = (*Generator)(nil)

// Generator implements llm.Generator by wrapping github.com/mozilla-ai/any-llm-go.
type Generator struct {
	backend      anyllmlib.Provider
	model        string
	systemPrompt string
}

// Option is a functional option for configuring a Generator.
type Option func(*Generator)

// WithSystemPrompt sets the system prompt prepended to every request.
func WithSystemPrompt(prompt string) Option {
	return func(g *Generator) { g.systemPrompt = prompt }
}

// New creates a Generator backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq". model is the specific model to use
// (e.g., "gpt-4o-mini", "claude-3-5-haiku-latest").
//
// backendOpts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL). If no API key option is provided, the backend falls
// back to the relevant environment variable (OPENAI_API_KEY, and so on).
func New(providerName, model string, opts []Option, backendOpts ...anyllmlib.Option) (*Generator, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, backendOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	g := &Generator{backend: backend, model: model}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// createBackend creates the underlying any-llm-go provider for the given name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq", providerName)
	}
}

// buildMessages lays out the request: optional system prompt, then the
// conversation history in order, then the new user input.
func buildMessages(systemPrompt, input string, history []llm.Turn) []anyllmlib.Message {
	messages := make([]anyllmlib.Message, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: systemPrompt,
		})
	}
	for _, t := range history {
		role := anyllmlib.RoleUser
		if t.Role == llm.RoleAssistant {
			role = anyllmlib.RoleAssistant
		}
		messages = append(messages, anyllmlib.Message{Role: role, Content: t.Content})
	}
	return append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleUser,
		Content: input,
	})
}

// Generate implements llm.Generator.
func (g *Generator) Generate(ctx context.Context, input string, history []llm.Turn) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", fmt.Errorf("anyllm: input must not be empty")
	}

	resp, err := g.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model:    g.model,
		Messages: buildMessages(g.systemPrompt, input, history),
	})
	if err != nil {
		return "", fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: empty choices in response")
	}

	return resp.Choices[0].Message.ContentString(), nil
}
