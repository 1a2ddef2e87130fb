// Package openaicompat implements segue.Provider for any OpenAI-compatible
// chat completions API.
//
// Works with OpenAI, OpenRouter, Groq, Together, DeepSeek, Mistral, Ollama,
// vLLM, LM Studio, and any other provider implementing the same surface.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/seguehq/segue"
)

// Provider implements segue.Provider over a chat completions endpoint.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	name    string
	client  *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithName overrides the provider name reported to callers (default "openai").
func WithName(name string) Option { return func(p *Provider) { p.name = name } }

// WithHTTPClient replaces the HTTP client (used by tests).
func WithHTTPClient(c *http.Client) Option { return func(p *Provider) { p.client = c } }

// NewProvider creates an OpenAI-compatible chat provider.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "http://localhost:11434/v1"). The /chat/completions path is appended
// automatically.
func NewProvider(apiKey, model, baseURL string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		name:    "openai",
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireBody struct {
	Model          string        `json:"model"`
	Messages       []wireMessage `json:"messages"`
	Temperature    *float64      `json:"temperature,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends a non-streaming chat request and returns the complete response.
func (p *Provider) Chat(ctx context.Context, req segue.ChatRequest) (segue.ChatResponse, error) {
	body := wireBody{Model: p.model, Temperature: req.Temperature}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}
	if req.JSONMode {
		body.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return segue.ChatResponse{}, &segue.ErrLLM{Provider: p.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return segue.ChatResponse{}, &segue.ErrLLM{Provider: p.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return segue.ChatResponse{}, &segue.ErrLLM{Provider: p.name, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return segue.ChatResponse{}, &segue.ErrHTTPStatus{Status: resp.StatusCode, Body: string(raw)}
	}

	var chatResp wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return segue.ChatResponse{}, &segue.ErrLLM{Provider: p.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(chatResp.Choices) == 0 {
		return segue.ChatResponse{}, &segue.ErrLLM{Provider: p.name, Message: "response has no choices"}
	}
	return segue.ChatResponse{
		Content: chatResp.Choices[0].Message.Content,
		Usage: segue.Usage{
			InputTokens:  chatResp.Usage.PromptTokens,
			OutputTokens: chatResp.Usage.CompletionTokens,
		},
	}, nil
}

var _ segue.Provider = (*Provider)(nil)
