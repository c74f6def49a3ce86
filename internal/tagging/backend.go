package tagging

import (
	"fmt"

	"quill/internal/config"
	"quill/internal/services/llm"
	"quill/internal/services/ollama"
)

// NewChat builds the chat backend named by cfg.Provider. Attempts overrides
// the per-request retry count when positive.
func NewChat(cfg config.LLMConfig, attempts int) (Chat, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		opts := []llm.Option{}
		if attempts > 0 {
			opts = append(opts, llm.WithRetryMaxAttempts(attempts))
		}
		return llm.NewClient(llm.Config{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			Referer:        cfg.Referer,
			Title:          cfg.Title,
			TimeoutSeconds: cfg.TimeoutSeconds,
		}, opts...), nil
	case config.ProviderOllama:
		opts := []ollama.Option{}
		if attempts > 0 {
			policy := llm.DefaultRetryPolicy()
			policy.Attempts = attempts
			opts = append(opts, ollama.WithRetryPolicy(policy))
		}
		return ollama.NewClient(ollama.Config{
			Host:           cfg.BaseURL,
			Model:          cfg.Model,
			TimeoutSeconds: cfg.TimeoutSeconds,
		}, opts...), nil
	default:
		return nil, fmt.Errorf("tagging: unsupported llm provider %q", cfg.Provider)
	}
}
