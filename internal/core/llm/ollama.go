package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/markdave123-py/Homedex/internal/core"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultMaxRetries  = 2
	defaultRetryDelay  = 2 * time.Second
	defaultTimeout     = 5 * time.Minute
	defaultConcurrency = 2

	ocrTemperature = 0.1
)

// APIError is a non-2xx answer from the model server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ollama %d: %s", e.StatusCode, e.Message)
}

func isClientError(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode >= 400 && ae.StatusCode < 500
	}
	return false
}

// OllamaConfig selects the models used for each role.
type OllamaConfig struct {
	BaseURL     string
	ChatModel   string
	VisionModel string
	EmbedModel  string
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
	Concurrency int64
}

// OllamaClient talks to a local Ollama server for chat, vision OCR and
// embeddings. In-flight requests are capped by a semaphore.
type OllamaClient struct {
	cfg        OllamaConfig
	http       *http.Client
	sem        *semaphore.Weighted
	retryDelay time.Duration
}

func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &OllamaClient{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		sem:        semaphore.NewWeighted(cfg.Concurrency),
		retryDelay: defaultRetryDelay,
	}
}

// WithModel returns a copy of the client that chats with another model but
// shares the connection pool and the concurrency cap.
func (c *OllamaClient) WithModel(model string) *OllamaClient {
	cp := *c
	cp.cfg.ChatModel = model
	return &cp
}

// WithTemperature returns a copy that chats at temperature t.
func (c *OllamaClient) WithTemperature(t float64) *OllamaClient {
	cp := *c
	cp.cfg.Temperature = t
	return &cp
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Generate runs a chat completion with an optional system message.
func (c *OllamaClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var msgs []chatMessage
	if systemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: userPrompt})

	req := chatRequest{Model: c.cfg.ChatModel, Messages: msgs}
	if c.cfg.Temperature > 0 {
		req.Options = map[string]any{"temperature": c.cfg.Temperature}
	}

	var resp chatResponse
	if err := c.do(ctx, "/api/chat", req, &resp); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return resp.Message.Content, nil
}

// Recognize sends one PNG to the vision model with the given instruction.
func (c *OllamaClient) Recognize(ctx context.Context, instruction string, image []byte) (string, error) {
	req := chatRequest{
		Model: c.cfg.VisionModel,
		Messages: []chatMessage{{
			Role:    "user",
			Content: instruction,
			Images:  []string{base64.StdEncoding.EncodeToString(image)},
		}},
		Options: map[string]any{"temperature": ocrTemperature},
	}

	var resp chatResponse
	if err := c.do(ctx, "/api/chat", req, &resp); err != nil {
		return "", fmt.Errorf("ollama vision: %w", err)
	}
	return resp.Message.Content, nil
}

// EmbedTexts embeds all texts in one request.
func (c *OllamaClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embedResponse
	if err := c.do(ctx, "/api/embed", embedRequest{Model: c.cfg.EmbedModel, Input: texts}, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

func (c *OllamaClient) do(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		err := c.post(ctx, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		// Don't retry client errors (4xx)
		if isClientError(err) {
			break
		}
		log.Warn().Err(err).Str("path", path).Int("attempt", attempt+1).Msg("ollama request failed")
	}
	return fmt.Errorf("failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

func (c *OllamaClient) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var (
	_ core.LLMProvider       = (*OllamaClient)(nil)
	_ core.VisionProvider    = (*OllamaClient)(nil)
	_ core.EmbeddingProvider = (*OllamaClient)(nil)
)
