package config

import (
	"errors"
	"fmt"
	"slices"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateJob(); err != nil {
		return err
	}
	if err := c.validateDownloader(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateTagging(); err != nil {
		return err
	}
	return nil
}

// ValidateTagging checks the settings only the tag stage needs, such as the
// API key for hosted providers. Fetch runs do not require them.
func (c *Config) ValidateTagging() error {
	if c.LLM.Provider == ProviderOpenAI && c.LLM.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/quill/config.toml"
		}
		return fmt.Errorf("llm.api_key is required for provider %q. Set QUILL_LLM_API_KEY or edit %s (create with 'quill config init')", c.LLM.Provider, defaultPath)
	}
	return nil
}

func (c *Config) validateJob() error {
	if c.Job.MinDelaySeconds < 0 {
		return errors.New("job.min_delay_seconds must be >= 0")
	}
	if c.Job.MaxDelaySeconds < c.Job.MinDelaySeconds {
		return errors.New("job.max_delay_seconds must be >= job.min_delay_seconds")
	}
	return ensurePositiveMap(map[string]int{
		"job.call_timeout_seconds": c.Job.CallTimeoutSeconds,
	})
}

func (c *Config) validateDownloader() error {
	return ensurePositiveMap(map[string]int{
		"downloader.timeout_seconds":       c.Downloader.TimeoutSeconds,
		"downloader.check_timeout_seconds": c.Downloader.CheckTimeoutSeconds,
	})
}

func (c *Config) validateLLM() error {
	if !slices.Contains([]string{ProviderOpenAI, ProviderOllama}, c.LLM.Provider) {
		return fmt.Errorf("llm.provider must be %q or %q, got %q", ProviderOpenAI, ProviderOllama, c.LLM.Provider)
	}
	return ensurePositiveMap(map[string]int{
		"llm.timeout_seconds": c.LLM.TimeoutSeconds,
	})
}

func (c *Config) validateTagging() error {
	if slices.Contains(c.Tagging.Categories, "none") {
		return errors.New("tagging.categories must not include the reserved category \"none\"")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
