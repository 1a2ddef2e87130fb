// Package gemini implements segue.Provider for Google Gemini models.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/seguehq/segue"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini implements segue.Provider for the generateContent API.
type Gemini struct {
	apiKey      string
	model       string
	baseURL     string
	client      *http.Client
	temperature float64
}

// Option configures a Gemini provider.
type Option func(*Gemini)

// WithTemperature sets the default sampling temperature (default 0.1).
func WithTemperature(t float64) Option { return func(g *Gemini) { g.temperature = t } }

// WithBaseURL overrides the API base (used by tests).
func WithBaseURL(u string) Option { return func(g *Gemini) { g.baseURL = u } }

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(g *Gemini) { g.client = c } }

// New creates a Gemini chat provider.
func New(apiKey, model string, opts ...Option) *Gemini {
	g := &Gemini{
		apiKey:      apiKey,
		model:       model,
		baseURL:     defaultBaseURL,
		client:      &http.Client{},
		temperature: 0.1,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns "gemini".
func (g *Gemini) Name() string { return "gemini" }

type genPart struct {
	Text string `json:"text"`
}

type genContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []genPart `json:"parts"`
}

type genConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type genBody struct {
	Contents          []genContent `json:"contents"`
	SystemInstruction *genContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  genConfig    `json:"generationConfig"`
}

type genResponse struct {
	Candidates []struct {
		Content genContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Chat sends a non-streaming request and returns the complete response.
// System messages become the systemInstruction; assistant messages map to
// the "model" role.
func (g *Gemini) Chat(ctx context.Context, req segue.ChatRequest) (segue.ChatResponse, error) {
	body := genBody{GenerationConfig: genConfig{Temperature: g.temperature}}
	if req.Temperature != nil {
		body.GenerationConfig.Temperature = *req.Temperature
	}
	if req.JSONMode {
		body.GenerationConfig.ResponseMimeType = "application/json"
	}

	var systemParts []genPart
	for _, m := range req.Messages {
		switch m.Role {
		case segue.RoleSystem:
			systemParts = append(systemParts, genPart{Text: m.Content})
		case segue.RoleAssistant:
			body.Contents = append(body.Contents, genContent{Role: "model", Parts: []genPart{{Text: m.Content}}})
		default:
			body.Contents = append(body.Contents, genContent{Role: "user", Parts: []genPart{{Text: m.Content}}})
		}
	}
	if len(systemParts) > 0 {
		body.SystemInstruction = &genContent{Parts: systemParts}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return segue.ChatResponse{}, &segue.ErrLLM{Provider: "gemini", Message: fmt.Sprintf("marshal body: %v", err)}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return segue.ChatResponse{}, &segue.ErrLLM{Provider: "gemini", Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return segue.ChatResponse{}, &segue.ErrLLM{Provider: "gemini", Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return segue.ChatResponse{}, &segue.ErrHTTPStatus{Status: resp.StatusCode, Body: string(raw)}
	}

	var genResp genResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return segue.ChatResponse{}, &segue.ErrLLM{Provider: "gemini", Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(genResp.Candidates) == 0 {
		return segue.ChatResponse{}, &segue.ErrLLM{Provider: "gemini", Message: "response has no candidates"}
	}

	var text strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return segue.ChatResponse{
		Content: text.String(),
		Usage: segue.Usage{
			InputTokens:  genResp.UsageMetadata.PromptTokenCount,
			OutputTokens: genResp.UsageMetadata.CandidatesTokenCount,
		},
	}, nil
}

var _ segue.Provider = (*Gemini)(nil)
