// Package codegen turns natural-language requests into Python code through an
// LLM provider, and extracts executable code from raw model responses.
package codegen

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jkaninda/fundi/internal/llm"
)

// SystemPrompt pins the model to raw, directly executable Python output.
const SystemPrompt = "You are an expert Python programmer. " +
	"Output ONLY valid Python code. " +
	"Do NOT include any explanation, markdown formatting, or code fences. " +
	"Do NOT include ``` markers. " +
	"Just output the raw Python code that can be executed directly."

// Default sampling parameters.
const (
	defaultTemperature = 0.7
	defaultTopP        = 0.9
)

// Generator produces model responses for user prompts, carrying a bounded
// conversation context across calls.
type Generator struct {
	provider llm.Provider
	logger   *slog.Logger
}

// NewGenerator creates a Generator backed by the given provider.
func NewGenerator(provider llm.Provider, logger *slog.Logger) *Generator {
	return &Generator{provider: provider, logger: logger}
}

// Generate sends the prompt together with the conversation history and
// returns the raw model response. The conversation is not mutated — callers
// decide whether an exchange is worth recording.
func (g *Generator) Generate(ctx context.Context, prompt string, conv *Conversation) (string, error) {
	req := &llm.Request{
		SystemPrompt: SystemPrompt,
		Messages:     append(conv.Messages(), llm.Message{Role: llm.RoleUser, Content: prompt}),
		Temperature:  defaultTemperature,
		TopP:         defaultTopP,
	}

	resp, err := g.provider.SendMessage(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generating response: %w", err)
	}

	g.logger.DebugContext(ctx, "generation completed",
		slog.String("provider", g.provider.Name()),
		slog.Int("prompt_len", len(prompt)),
		slog.Int("response_len", len(resp.Content)),
	)

	return resp.Content, nil
}
