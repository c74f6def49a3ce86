package config

const (
	defaultStateDir           = "~/.local/share/quill"
	defaultLogDir             = "~/.local/share/quill/logs"
	defaultArticleDir         = "~/.local/share/quill/articles"
	defaultKeyField           = "article_url"
	defaultMinDelaySeconds    = 1
	defaultMaxDelaySeconds    = 5
	defaultCallTimeoutSeconds = 180
	defaultDownloaderURL      = "http://localhost:8964"
	defaultDownloaderTimeout  = 60
	defaultCheckTimeout       = 10
	defaultLLMProvider        = ProviderOpenAI
	defaultOpenAIBaseURL      = "https://api.openai.com/v1/chat/completions"
	defaultOllamaBaseURL      = "http://localhost:11434"
	defaultLLMModel           = "gpt-4o-mini"
	defaultLLMTimeoutSeconds  = 120
	defaultLLMTitle           = "quill"
	defaultKeywordCount       = 3
	defaultNtfyTimeout        = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

var defaultCategories = []string{"technology", "business", "science", "culture", "politics", "lifestyle"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	categories := make([]string, len(defaultCategories))
	copy(categories, defaultCategories)
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			ArticleDir: defaultArticleDir,
		},
		Job: Job{
			KeyField:           defaultKeyField,
			MinDelaySeconds:    defaultMinDelaySeconds,
			MaxDelaySeconds:    defaultMaxDelaySeconds,
			CallTimeoutSeconds: defaultCallTimeoutSeconds,
			RecordHistory:      true,
		},
		Downloader: Downloader{
			URL:                 defaultDownloaderURL,
			TimeoutSeconds:      defaultDownloaderTimeout,
			CheckTimeoutSeconds: defaultCheckTimeout,
		},
		LLM: LLM{
			Provider:       defaultLLMProvider,
			Model:          defaultLLMModel,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Tagging: Tagging{
			Categories:   categories,
			KeywordCount: defaultKeywordCount,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
