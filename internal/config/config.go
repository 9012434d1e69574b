// Package config holds all deepscout configuration: YAML file loading,
// environment overrides, and validation of the settings the pipeline
// cannot start without.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all deepscout configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Search provider configuration
	Search SearchConfig `yaml:"search"`

	// Page fetch configuration
	Fetch FetchConfig `yaml:"fetch"`

	// Research cycle configuration
	Research ResearchConfig `yaml:"research"`

	// Checkpoint configuration
	Checkpoint CheckpointConfig `yaml:"checkpoint"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the language model client.
type LLMConfig struct {
	Provider   string `yaml:"provider"` // ollama, gemini
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	Host       string `yaml:"host"` // ollama base URL
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
}

// SearchConfig configures the search provider.
type SearchConfig struct {
	Provider   string `yaml:"provider"` // brave, none
	APIKey     string `yaml:"api_key"`
	MaxResults int    `yaml:"max_results"`
	QueryDelay string `yaml:"query_delay"` // minimum delay between searches
	Timeout    string `yaml:"timeout"`
}

// FetchConfig configures single-page fetching.
type FetchConfig struct {
	UserAgent    string `yaml:"user_agent"`
	Timeout      string `yaml:"timeout"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
	MinWords     int    `yaml:"min_words"`
	UseBrowser   bool   `yaml:"use_browser"` // render pages in a headless browser
}

// ResearchConfig configures the cycle loop.
type ResearchConfig struct {
	MaxCycles          int      `yaml:"max_cycles"`
	MaxQueriesPerCycle int      `yaml:"max_queries_per_cycle"`
	MaxPagesPerQuery   int      `yaml:"max_pages_per_query"`
	RelevanceThreshold int      `yaml:"relevance_threshold"`
	TrustedDomains     []string `yaml:"trusted_domains"`
}

// CheckpointConfig configures per-cycle state snapshots.
type CheckpointConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "deepscout",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider:   "ollama",
			Model:      "llama3.1:8b",
			Host:       "http://localhost:11434",
			Timeout:    "120s",
			MaxRetries: 3,
		},

		Search: SearchConfig{
			Provider:   "brave",
			MaxResults: 5,
			QueryDelay: "2s",
			Timeout:    "15s",
		},

		Fetch: FetchConfig{
			UserAgent:    "deepscout/0.3 (research pipeline)",
			Timeout:      "20s",
			MaxBodyBytes: 1 << 20,
			MinWords:     50,
			UseBrowser:   false,
		},

		Research: ResearchConfig{
			MaxCycles:          5,
			MaxQueriesPerCycle: 5,
			MaxPagesPerQuery:   3,
			RelevanceThreshold: 7,
			TrustedDomains:     []string{"japan-dev.com", "tokyodev.com"},
		},

		Checkpoint: CheckpointConfig{
			Dir: "checkpoints",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file, overlaying defaults, then
// applies environment overrides and validates the result. An empty path
// skips the file and uses defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config. Environment
// wins over file values so deployments can keep secrets out of YAML.
func (c *Config) applyEnv() {
	if v := os.Getenv("DEEPSCOUT_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("DEEPSCOUT_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.LLM.Host = v
	}
	if v := os.Getenv("DEEPSCOUT_BRAVE_API_KEY"); v != "" {
		c.Search.APIKey = v
	}
	if v := os.Getenv("DEEPSCOUT_CHECKPOINT_DIR"); v != "" {
		c.Checkpoint.Dir = v
	}
	if v := os.Getenv("DEEPSCOUT_MAX_CYCLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Research.MaxCycles = n
		}
	}
}

// Validate checks the settings the run cannot start without. These are
// the only errors surfaced before the cycle loop; everything past this
// point is recovered in-pipeline.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "ollama", "gemini":
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("config: llm model is required")
	}
	if c.LLM.Provider == "gemini" && c.LLM.APIKey == "" {
		return fmt.Errorf("config: gemini requires an api key")
	}
	switch c.Search.Provider {
	case "brave", "none":
	default:
		return fmt.Errorf("config: unknown search provider %q", c.Search.Provider)
	}
	if c.Research.MaxCycles < 1 {
		return fmt.Errorf("config: max_cycles must be at least 1")
	}
	if c.Research.MaxQueriesPerCycle < 1 {
		return fmt.Errorf("config: max_queries_per_cycle must be at least 1")
	}
	if c.Research.MaxPagesPerQuery < 1 {
		return fmt.Errorf("config: max_pages_per_query must be at least 1")
	}
	if t := c.Research.RelevanceThreshold; t < 1 || t > 10 {
		return fmt.Errorf("config: relevance_threshold must be in [1,10], got %d", t)
	}
	if c.Checkpoint.Dir == "" {
		return fmt.Errorf("config: checkpoint dir is required")
	}
	return nil
}

// Duration parses a duration string with a fallback for empty or
// malformed values.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
