package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.LLM.Provider != "gemini" {
		t.Errorf("provider = %q", cfg.LLM.Provider)
	}
	if !cfg.Intent.UseLLM || cfg.Intent.TimeoutSeconds != 5 || cfg.Intent.ConfidenceThreshold != 0.7 {
		t.Errorf("intent defaults = %+v", cfg.Intent)
	}
	if cfg.Intent.CacheSize != 100 {
		t.Errorf("cache size = %d", cfg.Intent.CacheSize)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segue.toml")
	data := `
[llm]
provider = "openai"
model = "gpt-4o-mini"

[ticket]
base_url = "https://example.atlassian.net"
project_key = "PROJ"

[tools]
use_remote = true
command = "npx"
args = ["-y", "mcp-atlassian"]
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Ticket.ProjectKey != "PROJ" {
		t.Errorf("project key = %q", cfg.Ticket.ProjectKey)
	}
	if !cfg.Tools.UseRemote || cfg.Tools.Command != "npx" || len(cfg.Tools.Args) != 2 {
		t.Errorf("tools = %+v", cfg.Tools)
	}
	// Wiki host falls back to the ticket host.
	if cfg.Wiki.BaseURL != "https://example.atlassian.net" {
		t.Errorf("wiki base = %q", cfg.Wiki.BaseURL)
	}
	// File did not touch intent; defaults survive.
	if cfg.Intent.TimeoutSeconds != 5 {
		t.Errorf("intent timeout = %d", cfg.Intent.TimeoutSeconds)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SEGUE_LLM_API_KEY", "env-key")
	t.Setenv("SEGUE_INTENT_USE_LLM", "false")
	t.Setenv("SEGUE_INTENT_CONFIDENCE_THRESHOLD", "0.9")
	t.Setenv("SEGUE_WIKI_BASE_URL", "https://wiki.example.com")

	cfg := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("api key = %q", cfg.LLM.APIKey)
	}
	if cfg.Intent.UseLLM {
		t.Error("intent.use_llm should be false from env")
	}
	if cfg.Intent.ConfidenceThreshold != 0.9 {
		t.Errorf("threshold = %v", cfg.Intent.ConfidenceThreshold)
	}
	if cfg.Wiki.BaseURL != "https://wiki.example.com" {
		t.Errorf("wiki base = %q", cfg.Wiki.BaseURL)
	}
}
