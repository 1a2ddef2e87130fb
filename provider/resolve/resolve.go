// Package resolve creates chat providers from provider-agnostic config.
package resolve

import (
	"fmt"

	"github.com/seguehq/segue"
	"github.com/seguehq/segue/provider/gemini"
	"github.com/seguehq/segue/provider/openaicompat"
)

// Config holds provider-agnostic configuration for creating a chat Provider.
type Config struct {
	Provider string // "gemini", "openai", "groq", "deepseek", "together", "mistral", "ollama"
	APIKey   string
	Model    string
	BaseURL  string // required for unknown openai-compat hosts; auto-filled for known providers

	// Temperature is the provider-level default (nil = provider default).
	Temperature *float64
}

// Provider creates a segue.Provider from a Config.
func Provider(cfg Config) (segue.Provider, error) {
	switch cfg.Provider {
	case "gemini":
		var opts []gemini.Option
		if cfg.Temperature != nil {
			opts = append(opts, gemini.WithTemperature(*cfg.Temperature))
		}
		return gemini.New(cfg.APIKey, cfg.Model, opts...), nil
	case "openai", "groq", "deepseek", "together", "mistral", "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURL(cfg.Provider)
		}
		return openaicompat.NewProvider(cfg.APIKey, cfg.Model, baseURL,
			openaicompat.WithName(cfg.Provider)), nil
	default:
		return nil, fmt.Errorf("resolve: unknown provider %q", cfg.Provider)
	}
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	case "groq":
		return "https://api.groq.com/openai/v1"
	case "deepseek":
		return "https://api.deepseek.com/v1"
	case "together":
		return "https://api.together.xyz/v1"
	case "mistral":
		return "https://api.mistral.ai/v1"
	case "ollama":
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}
