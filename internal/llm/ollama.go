package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"deepscout/internal/config"
)

// OllamaClient talks to a local Ollama daemon via /api/generate.
type OllamaClient struct {
	host       string
	model      string
	httpClient *http.Client
	maxRetries int
	logger     *zap.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

// minRequestInterval spaces out generate calls so a small local daemon
// is not flooded by back-to-back pipeline steps.
const minRequestInterval = 250 * time.Millisecond

// NewOllamaClient creates a client for the configured Ollama host.
func NewOllamaClient(cfg config.LLMConfig, logger *zap.Logger) *OllamaClient {
	host := strings.TrimSuffix(cfg.Host, "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	return &OllamaClient{
		host:  host,
		model: cfg.Model,
		httpClient: &http.Client{
			Timeout: config.Duration(cfg.Timeout, 120*time.Second),
		},
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Generate sends the prompt to /api/generate and returns the raw response
// text. Retries with exponential backoff on 429 and 5xx responses.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	o := applyOptions(opts)

	// Rate limiting: ensure a minimum interval between requests.
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < minRequestInterval {
		time.Sleep(minRequestInterval - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	reqBody := ollamaRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	}
	if o.hasTemperature {
		reqBody.Options = &ollamaOptions{Temperature: o.temperature}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			// Exponential backoff: 1s, 2s, 4s
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("ollama http %d", resp.StatusCode)
			c.logger.Warn("ollama request failed, retrying",
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", i+1))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("ollama http %d: %s", resp.StatusCode, truncateForLog(string(body)))
		}

		var parsed ollamaResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", fmt.Errorf("failed to parse ollama response: %w", err)
		}
		if parsed.Error != "" {
			return "", fmt.Errorf("ollama: %s", parsed.Error)
		}
		return parsed.Response, nil
	}

	return "", fmt.Errorf("ollama: retries exhausted: %w", lastErr)
}

// Name identifies the provider and model.
func (c *OllamaClient) Name() string {
	return fmt.Sprintf("ollama:%s", c.model)
}

func truncateForLog(s string) string {
	if len(s) <= 200 {
		return s
	}
	return s[:200] + "..."
}
