package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/metrics"
)

// maxTransportRetries bounds the backoff loop around LLM transport calls.
const maxTransportRetries = 3

// OllamaClient implements Client against a local Ollama server. This is the
// default backend when no Anthropic API key is configured, since the system
// is commonly evaluated against small local models.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	model      string
	maxTokens  int64
	log        *slog.Logger
}

// NewOllamaClient creates a new Ollama LLM client.
func NewOllamaClient(baseURL, model string, maxTokens int64, log *slog.Logger) *OllamaClient {
	return &OllamaClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 0}, // model latency dominates; rely on ctx
		model:      model,
		maxTokens:  maxTokens,
		log:        log,
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete sends a prompt to Ollama's generate endpoint and returns the
// response text.
func (c *OllamaClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	c.log.Debug("ollama call starting", "model", c.model, "userPromptLen", len(userPrompt))

	var text string
	op := func() error {
		var err error
		text, err = c.generate(ctx, systemPrompt, userPrompt)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxTransportRetries), ctx))
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues("ollama", "error").Inc()
		c.log.Error("ollama call failed", "duration", time.Since(start), "error", err)
		return "", fmt.Errorf("ollama API error: %w", err)
	}
	metrics.LLMRequestsTotal.WithLabelValues("ollama", "ok").Inc()
	c.log.Debug("ollama call completed", "duration", time.Since(start))

	return text, nil
}

func (c *OllamaClient) generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := ollamaGenerateRequest{
		Model:  c.model,
		System: systemPrompt,
		Prompt: userPrompt,
		Stream: false,
		Options: map[string]any{
			"num_predict": c.maxTokens,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 500 {
			msg = msg[:500] + "..."
		}
		return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, msg)
	}

	var parsed ollamaGenerateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return parsed.Response, nil
}
