package ollama

// Wire types for Ollama's native API.
// https://github.com/ollama/ollama/blob/main/docs/api.md

type apiRequest struct {
	Model    string      `json:"model"`
	Messages []apiMessage `json:"messages"`
	Stream   bool        `json:"stream"`
	Options  *apiOptions `json:"options,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

type apiResponse struct {
	Model           string     `json:"model"`
	Message         apiMessage `json:"message"`
	Done            bool       `json:"done"`
	DoneReason      string     `json:"done_reason,omitempty"`
	PromptEvalCount int        `json:"prompt_eval_count"`
	EvalCount       int        `json:"eval_count"`
}

type tagsResponse struct {
	Models []tagModel `json:"models"`
}

type tagModel struct {
	Name string `json:"name"`
}
