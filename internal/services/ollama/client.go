package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quill/internal/services"
	"quill/internal/services/llm"
)

// DefaultHost is the address Ollama listens on out of the box.
const DefaultHost = "http://localhost:11434"

const defaultHTTPTimeout = 120 * time.Second

// Config captures the Ollama connection settings.
type Config struct {
	Host           string
	Model          string
	TimeoutSeconds int
}

// Client issues non-streaming chat requests against an Ollama server.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      llm.RetryPolicy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryPolicy overrides the retry behaviour.
func WithRetryPolicy(policy llm.RetryPolicy) Option {
	return func(c *Client) {
		c.retry = policy
	}
}

// NewClient constructs an Ollama client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		host = DefaultHost
	}
	client := &Client{
		cfg: Config{
			Host:           host,
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		retry:      llm.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Model reports the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error"`
}

// CompleteJSON sends the prompts with format=json and returns the reply content.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" || userPrompt == "" {
		return "", services.Wrap(services.ErrValidation, "ollama", "complete", "system and user prompts required", nil)
	}
	if c.cfg.Model == "" {
		return "", services.Wrap(services.ErrConfiguration, "ollama", "complete", "model required", nil)
	}
	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Format:  "json",
		Options: map[string]any{"temperature": 0},
	}
	return c.retry.Do(ctx, "ollama complete", func() (string, error) {
		return c.chat(ctx, payload)
	})
}

func (c *Client) chat(ctx context.Context, payload chatRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ollama request: encode body: %w", err)
	}
	endpoint, err := url.JoinPath(c.cfg.Host, "api", "chat")
	if err != nil {
		return "", fmt.Errorf("ollama request: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("ollama request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("ollama request: decode response: %w", err)
	}
	if decoded.Error != "" {
		return "", services.Wrap(services.ErrExternalTool, "ollama", "chat", decoded.Error, nil)
	}
	content := strings.TrimSpace(decoded.Message.Content)
	if content == "" {
		return "", services.Wrap(services.ErrExternalTool, "ollama", "chat", "empty content", nil)
	}
	return content, nil
}

// HealthCheck verifies the server answers and has the configured model pulled.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint, err := url.JoinPath(c.cfg.Host, "api", "tags")
	if err != nil {
		return fmt.Errorf("ollama health: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("ollama health: new request: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	var tags struct {
		Models []struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &tags); err != nil {
		return fmt.Errorf("ollama health: decode tags: %w", err)
	}
	for _, m := range tags.Models {
		if sameModel(m.Name, c.cfg.Model) || sameModel(m.Model, c.cfg.Model) {
			return nil
		}
	}
	return services.Wrap(services.ErrConfiguration, "ollama", "health", fmt.Sprintf("model %q not available", c.cfg.Model), nil)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request: http error (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := llm.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &llm.StatusError{
			Service:    "ollama",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}
	return body, nil
}

// sameModel treats "name" and "name:latest" as the same model.
func sameModel(candidate, want string) bool {
	if candidate == "" || want == "" {
		return false
	}
	if candidate == want {
		return true
	}
	return strings.TrimSuffix(candidate, ":latest") == strings.TrimSuffix(want, ":latest")
}
