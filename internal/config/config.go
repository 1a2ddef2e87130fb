// Package config loads segue configuration: defaults -> TOML file ->
// .env file -> SEGUE_* env vars (env wins).
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	LLM      LLMConfig      `toml:"llm"`
	Intent   IntentConfig   `toml:"intent"`
	Tools    ToolsConfig    `toml:"tools"`
	Ticket   TicketConfig   `toml:"ticket"`
	Wiki     WikiConfig     `toml:"wiki"`
	Agent    AgentConfig    `toml:"agent"`
	Database DatabaseConfig `toml:"database"`
	Observer ObserverConfig `toml:"observer"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

type IntentConfig struct {
	UseLLM              bool    `toml:"use_llm"`
	TimeoutSeconds      int     `toml:"timeout_seconds"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	Temperature         float64 `toml:"temperature"`
	CacheSize           int     `toml:"cache_size"`
}

type ToolsConfig struct {
	// UseRemote enables protocol-based tool dispatch. When false the
	// dispatcher uses only the direct API clients.
	UseRemote bool `toml:"use_remote"`
	// Command spawns the tool server subprocess, e.g. "npx".
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

type TicketConfig struct {
	BaseURL    string `toml:"base_url"`
	AuthUser   string `toml:"auth_user"`
	AuthToken  string `toml:"auth_token"`
	ProjectKey string `toml:"project_key"`
}

type WikiConfig struct {
	BaseURL  string `toml:"base_url"`
	SpaceKey string `toml:"space_key"`
}

type AgentConfig struct {
	DelegationEnabled bool `toml:"delegation_enabled"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres"; empty disables persistence.
	Driver string `toml:"driver"`
	Path   string `toml:"path"` // sqlite file
	DSN    string `toml:"dsn"`  // postgres connection string
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		LLM: LLMConfig{Provider: "gemini", Model: "gemini-2.0-flash"},
		Intent: IntentConfig{
			UseLLM:              true,
			TimeoutSeconds:      5,
			ConfidenceThreshold: 0.7,
			Temperature:         0.1,
			CacheSize:           100,
		},
		Database: DatabaseConfig{Driver: "sqlite", Path: "segue.db"},
	}
}

// Load reads config from path (default "segue.toml"), layering a .env file
// and SEGUE_* env vars on top.
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "segue.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// .env feeds the process environment without overriding real env vars.
	_ = godotenv.Load()

	applyEnv(&cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setStr("SEGUE_LLM_PROVIDER", &cfg.LLM.Provider)
	setStr("SEGUE_LLM_MODEL", &cfg.LLM.Model)
	setStr("SEGUE_LLM_API_KEY", &cfg.LLM.APIKey)
	setStr("SEGUE_LLM_BASE_URL", &cfg.LLM.BaseURL)

	setBool("SEGUE_INTENT_USE_LLM", &cfg.Intent.UseLLM)
	setInt("SEGUE_INTENT_LLM_TIMEOUT", &cfg.Intent.TimeoutSeconds)
	setFloat("SEGUE_INTENT_CONFIDENCE_THRESHOLD", &cfg.Intent.ConfidenceThreshold)
	setFloat("SEGUE_INTENT_LLM_TEMPERATURE", &cfg.Intent.Temperature)
	setInt("SEGUE_INTENT_CACHE_SIZE", &cfg.Intent.CacheSize)

	setBool("SEGUE_USE_REMOTE_TOOLS", &cfg.Tools.UseRemote)
	setStr("SEGUE_TOOLS_COMMAND", &cfg.Tools.Command)

	setStr("SEGUE_TICKET_BASE_URL", &cfg.Ticket.BaseURL)
	setStr("SEGUE_TICKET_AUTH_USER", &cfg.Ticket.AuthUser)
	setStr("SEGUE_TICKET_AUTH_TOKEN", &cfg.Ticket.AuthToken)
	setStr("SEGUE_TICKET_PROJECT_KEY", &cfg.Ticket.ProjectKey)

	setStr("SEGUE_WIKI_BASE_URL", &cfg.Wiki.BaseURL)
	setStr("SEGUE_WIKI_SPACE_KEY", &cfg.Wiki.SpaceKey)

	setBool("SEGUE_AGENT_DELEGATION_ENABLED", &cfg.Agent.DelegationEnabled)

	setStr("SEGUE_DB_DRIVER", &cfg.Database.Driver)
	setStr("SEGUE_DB_PATH", &cfg.Database.Path)
	setStr("SEGUE_DB_DSN", &cfg.Database.DSN)

	setBool("SEGUE_OBSERVER_ENABLED", &cfg.Observer.Enabled)

	// The wiki defaults to the ticket host when unset; both usually live
	// on the same site.
	if cfg.Wiki.BaseURL == "" {
		cfg.Wiki.BaseURL = cfg.Ticket.BaseURL
	}
}
