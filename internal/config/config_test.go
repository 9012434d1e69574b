package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 5, cfg.Research.MaxCycles)
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deepscout.yaml")
	data := []byte(`
llm:
  provider: ollama
  model: mistral:7b
research:
  max_cycles: 2
  relevance_threshold: 6
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mistral:7b", cfg.LLM.Model)
	assert.Equal(t, 2, cfg.Research.MaxCycles)
	assert.Equal(t, 6, cfg.Research.RelevanceThreshold)
	// untouched sections keep defaults
	assert.Equal(t, "brave", cfg.Search.Provider)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DEEPSCOUT_LLM_MODEL", "qwen2.5:14b")
	t.Setenv("DEEPSCOUT_BRAVE_API_KEY", "bsk-test")
	t.Setenv("DEEPSCOUT_MAX_CYCLES", "3")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5:14b", cfg.LLM.Model)
	assert.Equal(t, "bsk-test", cfg.Search.APIKey)
	assert.Equal(t, 3, cfg.Research.MaxCycles)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown llm provider", func(c *Config) { c.LLM.Provider = "hal9000" }},
		{"empty model", func(c *Config) { c.LLM.Model = "" }},
		{"gemini without key", func(c *Config) { c.LLM.Provider = "gemini"; c.LLM.APIKey = "" }},
		{"unknown search provider", func(c *Config) { c.Search.Provider = "altavista" }},
		{"zero cycles", func(c *Config) { c.Research.MaxCycles = 0 }},
		{"zero queries per cycle", func(c *Config) { c.Research.MaxQueriesPerCycle = 0 }},
		{"zero pages per query", func(c *Config) { c.Research.MaxPagesPerQuery = 0 }},
		{"threshold too high", func(c *Config) { c.Research.RelevanceThreshold = 11 }},
		{"empty checkpoint dir", func(c *Config) { c.Checkpoint.Dir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationFallback(t *testing.T) {
	assert.Equal(t, 5*time.Second, Duration("", 5*time.Second))
	assert.Equal(t, 5*time.Second, Duration("not-a-duration", 5*time.Second))
	assert.Equal(t, 90*time.Second, Duration("90s", 5*time.Second))
}
