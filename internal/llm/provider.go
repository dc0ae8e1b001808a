// Package llm defines the provider-agnostic interface for LLM interactions.
package llm

import "context"

// Provider is the abstraction over any LLM backend (Ollama, OpenAI-compatible, etc.).
type Provider interface {
	// SendMessage sends a conversation to the LLM and returns its response.
	SendMessage(ctx context.Context, req *Request) (*Response, error)
	// ListModels returns the model names available on the backend.
	ListModels(ctx context.Context) ([]string, error)
	// Name returns the provider identifier (e.g. "ollama").
	Name() string
}

// Request represents a full conversation sent to the LLM.
type Request struct {
	SystemPrompt string
	Messages     []Message
	Temperature  float64 // 0 = provider default.
	TopP         float64 // 0 = provider default.
}

// Message is a single turn in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Response is the LLM's reply to a Request.
type Response struct {
	Content    string
	Model      string // Model that produced the response, as reported by the backend.
	StopReason string
	Usage      Usage
}

// Usage reports token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
