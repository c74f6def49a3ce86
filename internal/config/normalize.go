package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeJob()
	c.normalizeDownloader()
	c.normalizeLLM()
	c.normalizeTagging()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ArticleDir) == "" {
		c.Paths.ArticleDir = defaultArticleDir
	}
	if c.Paths.ArticleDir, err = expandPath(c.Paths.ArticleDir); err != nil {
		return fmt.Errorf("paths.article_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeJob() {
	c.Job.KeyField = strings.TrimSpace(c.Job.KeyField)
	if c.Job.KeyField == "" {
		c.Job.KeyField = defaultKeyField
	}
	if c.Job.CallTimeoutSeconds <= 0 {
		c.Job.CallTimeoutSeconds = defaultCallTimeoutSeconds
	}
}

func (c *Config) normalizeDownloader() {
	c.Downloader.URL = strings.TrimSpace(c.Downloader.URL)
	if value, ok := os.LookupEnv("QUILL_DOWNLOADER_URL"); ok && strings.TrimSpace(value) != "" {
		c.Downloader.URL = strings.TrimSpace(value)
	}
	if c.Downloader.URL == "" {
		c.Downloader.URL = defaultDownloaderURL
	}
	if c.Downloader.TimeoutSeconds <= 0 {
		c.Downloader.TimeoutSeconds = defaultDownloaderTimeout
	}
	if c.Downloader.CheckTimeoutSeconds <= 0 {
		c.Downloader.CheckTimeoutSeconds = defaultCheckTimeout
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultLLMProvider
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if value, ok := os.LookupEnv("QUILL_LLM_API_KEY"); ok && strings.TrimSpace(value) != "" {
		c.LLM.APIKey = strings.TrimSpace(value)
	} else if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		switch c.LLM.Provider {
		case ProviderOllama:
			c.LLM.BaseURL = defaultOllamaBaseURL
			if value, ok := os.LookupEnv("OLLAMA_HOST"); ok && strings.TrimSpace(value) != "" {
				c.LLM.BaseURL = strings.TrimSpace(value)
			}
		default:
			c.LLM.BaseURL = defaultOpenAIBaseURL
		}
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeTagging() {
	if c.Tagging.KeywordCount <= 0 {
		c.Tagging.KeywordCount = defaultKeywordCount
	}
	categories := make([]string, 0, len(c.Tagging.Categories))
	seen := make(map[string]struct{}, len(c.Tagging.Categories))
	for _, category := range c.Tagging.Categories {
		normalized := strings.ToLower(strings.TrimSpace(category))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		categories = append(categories, normalized)
	}
	if len(categories) == 0 {
		categories = append(categories, defaultCategories...)
	}
	c.Tagging.Categories = categories
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// OverrideLLM applies per-invocation provider and model overrides. Switching
// provider drops the configured endpoint so the new provider's default applies.
func (c *Config) OverrideLLM(provider, model string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider != "" && provider != c.LLM.Provider {
		c.LLM.Provider = provider
		c.LLM.BaseURL = ""
	}
	if model = strings.TrimSpace(model); model != "" {
		c.LLM.Model = model
	}
	c.normalizeLLM()
	return c.validateLLM()
}
