// Package ollama implements the LLM provider interface for a local Ollama server.
// It speaks Ollama's native API: /api/chat for conversations and /api/tags for
// model discovery. Responses are requested non-streaming.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jkaninda/fundi/internal/llm"
)

const (
	defaultBaseURL = "http://localhost:11434"
	chatPath       = "/api/chat"
	tagsPath       = "/api/tags"
)

// Client implements llm.Provider against an Ollama server.
type Client struct {
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the Ollama client.
type Option func(*Client)

// WithBaseURL overrides the server base URL (default http://localhost:11434).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates an Ollama provider for the given model.
func NewClient(model string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "ollama" }

// Model returns the model the client is configured to use.
func (c *Client) Model() string { return c.model }

// SetModel switches the model used for subsequent requests.
func (c *Client) SetModel(model string) { c.model = model }

// SendMessage sends the conversation to Ollama's /api/chat endpoint.
func (c *Client) SendMessage(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	apiReq := c.buildRequest(req)

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama error (status %d): %s", httpResp.StatusCode, string(respBody))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	resp := toResponse(&apiResp)

	c.logger.DebugContext(ctx, "llm request completed",
		slog.String("provider", c.Name()),
		slog.String("model", c.model),
		slog.Int("input_tokens", resp.Usage.InputTokens),
		slog.Int("output_tokens", resp.Usage.OutputTokens),
		slog.String("stop_reason", resp.StopReason),
	)

	return resp, nil
}

// ListModels queries /api/tags for the models installed on the server.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tagsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("ollama error (status %d): %s", httpResp.StatusCode, string(body))
	}

	var tags tagsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("parsing tags response: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *Client) buildRequest(req *llm.Request) apiRequest {
	var messages []apiMessage

	// System prompt becomes a system message.
	if req.SystemPrompt != "" {
		messages = append(messages, apiMessage{
			Role:    "system",
			Content: req.SystemPrompt,
		})
	}

	for _, m := range req.Messages {
		messages = append(messages, apiMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	apiReq := apiRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
	}

	if req.Temperature > 0 || req.TopP > 0 {
		apiReq.Options = &apiOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
		}
	}

	return apiReq
}

func toResponse(apiResp *apiResponse) *llm.Response {
	stopReason := "end_turn"
	if !apiResp.Done {
		stopReason = "incomplete"
	} else if apiResp.DoneReason != "" && apiResp.DoneReason != "stop" {
		stopReason = apiResp.DoneReason
	}

	return &llm.Response{
		Content:    apiResp.Message.Content,
		Model:      apiResp.Model,
		StopReason: stopReason,
		Usage: llm.Usage{
			InputTokens:  apiResp.PromptEvalCount,
			OutputTokens: apiResp.EvalCount,
		},
	}
}
