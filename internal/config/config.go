package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// LLM provider identifiers accepted by llm.provider.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Paths contains directory configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	ArticleDir string `toml:"article_dir"`
}

// Job contains settings shared by every processing pass.
type Job struct {
	KeyField           string `toml:"key_field"`
	MinDelaySeconds    int    `toml:"min_delay_seconds"`
	MaxDelaySeconds    int    `toml:"max_delay_seconds"`
	CallTimeoutSeconds int    `toml:"call_timeout_seconds"`
	RecordHistory      bool   `toml:"record_history"`
}

// Downloader contains settings for the article download service.
type Downloader struct {
	URL                 string `toml:"url"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	CheckTimeoutSeconds int    `toml:"check_timeout_seconds"`
	SaveProcessed       bool   `toml:"save_processed"`
}

// LLM contains the language model connection used by the tag stage.
type LLM struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Tagging contains classification and keyword extraction settings.
type Tagging struct {
	Categories   []string `toml:"categories"`
	KeywordCount int      `toml:"keyword_count"`
}

// Notifications contains ntfy settings for run reports.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for quill.
//
// Configuration sections by subsystem:
//   - Paths: state, log, and article directories
//   - Job: key column, pacing bounds, per-call timeout, run history
//   - Downloader: article download service endpoint and timeouts
//   - LLM: chat provider used for classification and keywords
//   - Tagging: category set and keyword count
//   - Notifications: optional ntfy topic for run reports
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Job           Job           `toml:"job"`
	Downloader    Downloader    `toml:"downloader"`
	LLM           LLM           `toml:"llm"`
	Tagging       Tagging       `toml:"tagging"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/quill/config.toml")
}

// Load reads the configuration at path, or searches the default locations
// when path is empty. A missing file yields the defaults. It returns the
// config, the path it resolved to, and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	if exists {
		data, err := os.ReadFile(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// resolveConfigPath returns an explicit path as-is (existing or not).
// Otherwise the user config wins over ./quill.toml, and the user path is
// reported when neither exists.
func resolveConfigPath(path string) (string, bool, error) {
	var candidates []string
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		candidates = []string{expanded}
	} else {
		userPath, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		projectPath, err := filepath.Abs("quill.toml")
		if err != nil {
			return "", false, err
		}
		candidates = []string{userPath, projectPath}
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		switch {
		case err == nil && !info.IsDir():
			return candidate, true, nil
		case err == nil:
			return "", false, fmt.Errorf("config path %s is a directory", candidate)
		case !errors.Is(err, fs.ErrNotExist):
			return "", false, fmt.Errorf("stat config: %w", err)
		}
	}
	return candidates[0], false, nil
}

// EnsureDirectories creates the state and log directories.
// ArticleDir is created on demand by the fetch stage because commands may
// override it per invocation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RunHistoryPath returns the SQLite database recording past runs.
func (c *Config) RunHistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "runs.db")
}

// LogFilePath returns the file every log line is appended to.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "quill.log")
}

// PacingBounds returns the inclusive delay range slept after each dispatched record.
func (c *Config) PacingBounds() (time.Duration, time.Duration) {
	return time.Duration(c.Job.MinDelaySeconds) * time.Second,
		time.Duration(c.Job.MaxDelaySeconds) * time.Second
}

// CallTimeout returns the per-record processing timeout.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Job.CallTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the resolved LLM connection settings.
type LLMConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the LLM connection settings used by the tag stage.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider:       strings.TrimSpace(c.LLM.Provider),
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}
