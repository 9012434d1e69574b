// Package llm provides language model clients for the research pipeline.
// The pipeline treats the model as an unreliable oracle: clients return
// free-form text and callers own all parsing and recovery.
package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"deepscout/internal/config"
)

// Client is the minimal contract the pipeline needs from a language model.
type Client interface {
	// Generate sends a prompt and returns the model's raw text response.
	Generate(ctx context.Context, prompt string, opts ...Option) (string, error)

	// Name identifies the provider and model for logging.
	Name() string
}

// Option adjusts a single Generate call.
type Option func(*callOptions)

type callOptions struct {
	temperature    float32
	hasTemperature bool
}

// WithTemperature sets the sampling temperature for one call. Extraction
// runs cold (0.1) while planning uses the provider default.
func WithTemperature(t float32) Option {
	return func(o *callOptions) {
		o.temperature = t
		o.hasTemperature = true
	}
}

func applyOptions(opts []Option) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewClient builds a client from configuration. Unknown providers were
// already rejected by config validation but are re-checked here so the
// factory is safe to call directly.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaClient(cfg, logger), nil
	case "gemini":
		return NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
