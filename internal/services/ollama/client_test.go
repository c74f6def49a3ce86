package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quill/internal/services"
	"quill/internal/services/llm"
	"quill/internal/services/ollama"
)

func TestCompleteJSONPostsNonStreamingChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Format   string `json:"format"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Model != "qwen2.5" || body.Stream || body.Format != "json" || len(body.Messages) != 2 {
			t.Errorf("unexpected request body %+v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": `{"category":"business"}`},
			"done":    true,
		})
	}))
	defer server.Close()

	client := ollama.NewClient(ollama.Config{Host: server.URL + "/", Model: "qwen2.5"})
	content, err := client.CompleteJSON(context.Background(), "classify", "text")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if content != `{"category":"business"}` {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestCompleteJSONRetriesServerErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"message": map[string]any{"content": "[]"}})
	}))
	defer server.Close()

	client := ollama.NewClient(
		ollama.Config{Host: server.URL, Model: "m"},
		ollama.WithRetryPolicy(llm.RetryPolicy{Attempts: 3, Sleeper: func(time.Duration) {}}),
	)
	content, err := client.CompleteJSON(context.Background(), "s", "u")
	if err != nil || content != "[]" {
		t.Fatalf("unexpected result %q, %v", content, err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestCompleteJSONReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "model not found"})
	}))
	defer server.Close()

	client := ollama.NewClient(ollama.Config{Host: server.URL, Model: "m"})
	_, err := client.CompleteJSON(context.Background(), "s", "u")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestHealthCheckMatchesLatestTag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []any{map[string]any{"name": "llama3:latest", "model": "llama3:latest"}},
		})
	}))
	defer server.Close()

	if err := ollama.NewClient(ollama.Config{Host: server.URL, Model: "llama3"}).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
	err := ollama.NewClient(ollama.Config{Host: server.URL, Model: "mistral"}).HealthCheck(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for missing model, got %v", err)
	}
}
