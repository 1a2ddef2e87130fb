package segue

import "context"

// Provider abstracts the LLM backend.
type Provider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Name returns the provider name (e.g. "gemini", "openai").
	Name() string
}

// ChatRequest is one LLM call.
type ChatRequest struct {
	Messages []Message `json:"messages"`
	// Temperature overrides the provider default when non-nil.
	Temperature *float64 `json:"temperature,omitempty"`
	// JSONMode asks the provider to return a single JSON object.
	JSONMode bool `json:"json_mode,omitempty"`
}

// ChatResponse is the provider's completed answer.
type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Temp is a convenience for building ChatRequest.Temperature values.
func Temp(v float64) *float64 { return &v }

// generate runs a single system+user prompt against a provider.
// Shared by the classifier and the content-generation handlers.
func generate(ctx context.Context, p Provider, system, user string, temperature *float64, jsonMode bool) (string, error) {
	resp, err := p.Chat(ctx, ChatRequest{
		Messages:    []Message{SystemMessage(system), UserMessage(user)},
		Temperature: temperature,
		JSONMode:    jsonMode,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
