package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paper-agent/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// AIConfig holds shared settings for stages that call the Claude API.
type AIConfig struct {
	// Model is the AI model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxTokens bounds the response length (default 8192).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// StorageConfig locates the on-disk state owned by the engine.
type StorageConfig struct {
	// Dir is the storage root. It contains tasks.json, cache.json, the
	// date-stamped summary directories, and index/.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`
}

// SchedulerConfig holds settings for the background scheduling loop and
// the per-stage worker pools.
type SchedulerConfig struct {
	// PollInterval is how often the scheduler looks for a pending batch
	// (default 2s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`

	// SearchConcurrency bounds parallel work items in the search stage
	// (default 3).
	SearchConcurrency int `json:"search_concurrency" yaml:"search_concurrency" mapstructure:"search_concurrency"`

	// AnalyzeConcurrency bounds parallel work items in the analyze stage
	// (default 1; summarization is the heaviest external call).
	AnalyzeConcurrency int `json:"analyze_concurrency" yaml:"analyze_concurrency" mapstructure:"analyze_concurrency"`

	// MaxItemRetries is the retry ceiling for failed analyze items
	// (default 2).
	MaxItemRetries int `json:"max_item_retries" yaml:"max_item_retries" mapstructure:"max_item_retries"`

	// StopTimeout bounds how long Stop waits for the loop to exit
	// (default 5s).
	StopTimeout time.Duration `json:"stop_timeout" yaml:"stop_timeout" mapstructure:"stop_timeout"`
}

// ResolveConfig holds settings for the paper resolution stage.
type ResolveConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// MaxResults is how many candidates to request from each source when
	// matching a title (default 10).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// OpenAlexEmail is sent as the mailto parameter for polite pool access.
	OpenAlexEmail string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty" mapstructure:"openalex_email"`

	// RequestsPerSecond paces calls to the academic APIs (default 1).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// AnalysisConfig holds settings for the summarization stage.
type AnalysisConfig struct {
	AIConfig   `yaml:",inline" mapstructure:",squash"`
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// MaxPDFBytes is the largest PDF the stage will download (default 10MB).
	MaxPDFBytes int64 `json:"max_pdf_bytes" yaml:"max_pdf_bytes" mapstructure:"max_pdf_bytes"`

	// MaxTextChars truncates extracted PDF text sent to the model
	// (default 200000).
	MaxTextChars int `json:"max_text_chars" yaml:"max_text_chars" mapstructure:"max_text_chars"`

	// RequestsPerSecond paces summarization calls (default 0.5).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// LibraryConfig holds settings for the SQLite paper index.
type LibraryConfig struct {
	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is the output format: json or console.
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config groups all stage configurations.
type Config struct {
	Storage   StorageConfig   `json:"storage" yaml:"storage" mapstructure:"storage"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler" mapstructure:"scheduler"`
	Format    AIConfig        `json:"format" yaml:"format" mapstructure:"format"`
	Resolve   ResolveConfig   `json:"resolve" yaml:"resolve" mapstructure:"resolve"`
	Analysis  AnalysisConfig  `json:"analysis" yaml:"analysis" mapstructure:"analysis"`
	Library   LibraryConfig   `json:"library" yaml:"library" mapstructure:"library"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging" mapstructure:"logging"`
}

// ApplyDefaults fills zero-valued fields with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Storage.Dir == "" {
		c.Storage.Dir = "storage"
	}
	if c.Scheduler.PollInterval <= 0 {
		c.Scheduler.PollInterval = 2 * time.Second
	}
	if c.Scheduler.SearchConcurrency <= 0 {
		c.Scheduler.SearchConcurrency = 3
	}
	if c.Scheduler.AnalyzeConcurrency <= 0 {
		c.Scheduler.AnalyzeConcurrency = 1
	}
	if c.Scheduler.MaxItemRetries <= 0 {
		c.Scheduler.MaxItemRetries = 2
	}
	if c.Scheduler.StopTimeout <= 0 {
		c.Scheduler.StopTimeout = 5 * time.Second
	}
	if c.Resolve.Timeout <= 0 {
		c.Resolve.Timeout = 30 * time.Second
	}
	if c.Resolve.UserAgent == "" {
		c.Resolve.UserAgent = "paper-agent/0.1"
	}
	if c.Resolve.MaxResults <= 0 {
		c.Resolve.MaxResults = 10
	}
	if c.Resolve.RequestsPerSecond <= 0 {
		c.Resolve.RequestsPerSecond = 1
	}
	if c.Format.Model == "" {
		c.Format.Model = "claude-sonnet-4-20250514"
	}
	if c.Format.MaxTokens <= 0 {
		c.Format.MaxTokens = 4096
	}
	if c.Format.MaxRetries <= 0 {
		c.Format.MaxRetries = 3
	}
	if c.Analysis.Timeout <= 0 {
		c.Analysis.Timeout = 120 * time.Second
	}
	if c.Analysis.UserAgent == "" {
		c.Analysis.UserAgent = "paper-agent/0.1"
	}
	if c.Analysis.Model == "" {
		c.Analysis.Model = "claude-sonnet-4-20250514"
	}
	if c.Analysis.MaxTokens <= 0 {
		c.Analysis.MaxTokens = 8192
	}
	if c.Analysis.MaxRetries <= 0 {
		c.Analysis.MaxRetries = 3
	}
	if c.Analysis.MaxPDFBytes <= 0 {
		c.Analysis.MaxPDFBytes = 10 * 1024 * 1024
	}
	if c.Analysis.MaxTextChars <= 0 {
		c.Analysis.MaxTextChars = 200000
	}
	if c.Analysis.RequestsPerSecond <= 0 {
		c.Analysis.RequestsPerSecond = 0.5
	}
	if c.Library.MaxResults <= 0 {
		c.Library.MaxResults = 20
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}
