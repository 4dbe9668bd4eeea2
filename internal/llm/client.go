package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Config holds settings for the Gemini-style REST client.
type Config struct {
	BaseURL     string // e.g. https://generativelanguage.googleapis.com/v1beta
	APIKey      string
	Temperature float32
	Timeout     time.Duration
}

// GeminiClient implements Client against the generateContent REST endpoint.
type GeminiClient struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewGeminiClient(cfg Config, logger *slog.Logger) *GeminiClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &GeminiClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

// Generate sends the prompt and returns the concatenated text of the first
// candidate. The caller owns JSON extraction from the response text.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, model string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.generate.start",
		"req_id", rid,
		"model", model,
		"prompt_len", len(prompt),
	)

	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]any{{"text": prompt}}},
		},
		"generationConfig": map[string]any{
			"temperature": c.cfg.Temperature,
		},
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent",
		strings.TrimRight(c.cfg.BaseURL, "/"), model)
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Error("llm.generate.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.log.Error("llm.generate.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in llm response")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	text := b.String()

	c.log.Info("llm.generate.ok",
		"req_id", rid,
		"chars_out", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func (c *GeminiClient) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.Warn("llm response body close error", "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("llm status %d: %s", resp.StatusCode, truncate(string(raw), 2048))
	}
	return raw, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
