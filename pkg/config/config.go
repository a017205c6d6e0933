package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the GitHub sync layer
type Config struct {
	APIBaseURL string `mapstructure:"api_base_url"`
	CacheDir   string `mapstructure:"cache_dir"`
	CacheDB    string `mapstructure:"cache_db"`

	// Cache TTLs per resource kind. Mutable collections (issues, pull
	// requests, workflow runs) stay short; repository metadata can live
	// much longer.
	RepoTTL      time.Duration `mapstructure:"repo_ttl"`
	IssueListTTL time.Duration `mapstructure:"issue_list_ttl"`
	PullListTTL  time.Duration `mapstructure:"pull_list_ttl"`
	WorkflowTTL  time.Duration `mapstructure:"workflow_ttl"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`

	PerPage   int  `mapstructure:"per_page"`
	MaxPages  int  `mapstructure:"max_pages"`
	Lookahead bool `mapstructure:"lookahead"`

	MaxRetries        int           `mapstructure:"max_retries"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	MaxRetryAfter     time.Duration `mapstructure:"max_retry_after"`

	RateLimitThreshold int `mapstructure:"rate_limit_threshold"`

	LogLevel string `mapstructure:"log_level"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s value '%v': %s", e.Field, e.Value, e.Message)
}

// CacheDBPath returns the full path of the persistent cache database
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.CacheDir, c.CacheDB)
}

// TTLForKind returns the cache TTL for a resource kind. Unknown kinds get
// the default TTL.
func (c *Config) TTLForKind(kind string) time.Duration {
	switch kind {
	case "repository":
		return c.RepoTTL
	case "issues":
		return c.IssueListTTL
	case "pulls":
		return c.PullListTTL
	case "workflows":
		return c.WorkflowTTL
	default:
		return c.DefaultTTL
	}
}

// Default returns a Config populated with the built-in defaults
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		// Defaults are static and always unmarshal
		panic(fmt.Sprintf("default config unmarshal: %v", err))
	}
	return &config
}

// LoadFromFile loads configuration from a TOML file
func LoadFromFile(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configFile)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// LoadWithEnvironment loads configuration with environment variable support
func LoadWithEnvironment() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("LAZYHUB")
	v.AutomaticEnv()

	envMappings := map[string]string{
		"LAZYHUB_API_BASE_URL":         "api_base_url",
		"LAZYHUB_CACHE_DIR":            "cache_dir",
		"LAZYHUB_CACHE_DB":             "cache_db",
		"LAZYHUB_REPO_TTL":             "repo_ttl",
		"LAZYHUB_ISSUE_LIST_TTL":       "issue_list_ttl",
		"LAZYHUB_PULL_LIST_TTL":        "pull_list_ttl",
		"LAZYHUB_WORKFLOW_TTL":         "workflow_ttl",
		"LAZYHUB_DEFAULT_TTL":          "default_ttl",
		"LAZYHUB_PER_PAGE":             "per_page",
		"LAZYHUB_MAX_PAGES":            "max_pages",
		"LAZYHUB_LOOKAHEAD":            "lookahead",
		"LAZYHUB_MAX_RETRIES":          "max_retries",
		"LAZYHUB_BACKOFF_BASE":         "backoff_base",
		"LAZYHUB_BACKOFF_MULTIPLIER":   "backoff_multiplier",
		"LAZYHUB_MAX_BACKOFF":          "max_backoff",
		"LAZYHUB_MAX_RETRY_AFTER":      "max_retry_after",
		"LAZYHUB_RATE_LIMIT_THRESHOLD": "rate_limit_threshold",
		"LAZYHUB_LOG_LEVEL":            "log_level",
	}

	for envVar, configKey := range envMappings {
		v.BindEnv(configKey, envVar)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	cacheDir := "lazyhub"
	if base, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(base, "lazyhub")
	}

	v.SetDefault("api_base_url", "https://api.github.com")
	v.SetDefault("cache_dir", cacheDir)
	v.SetDefault("cache_db", "cache.db")
	v.SetDefault("repo_ttl", time.Hour)
	v.SetDefault("issue_list_ttl", 2*time.Minute)
	v.SetDefault("pull_list_ttl", 2*time.Minute)
	v.SetDefault("workflow_ttl", time.Minute)
	v.SetDefault("default_ttl", 5*time.Minute)
	v.SetDefault("per_page", 50)
	v.SetDefault("max_pages", 20)
	v.SetDefault("lookahead", true)
	v.SetDefault("max_retries", 3)
	v.SetDefault("backoff_base", 500*time.Millisecond)
	v.SetDefault("backoff_multiplier", 2.0)
	v.SetDefault("max_backoff", 30*time.Second)
	v.SetDefault("max_retry_after", 2*time.Minute)
	v.SetDefault("rate_limit_threshold", 10)
	v.SetDefault("log_level", "info")
}

// Validate checks that the configuration values are usable
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return ValidationError{Field: "api_base_url", Value: c.APIBaseURL, Message: "must not be empty"}
	}
	if c.PerPage < 1 || c.PerPage > 100 {
		return ValidationError{Field: "per_page", Value: c.PerPage, Message: "must be between 1 and 100"}
	}
	if c.MaxPages < 1 {
		return ValidationError{Field: "max_pages", Value: c.MaxPages, Message: "must be at least 1"}
	}
	if c.MaxRetries < 0 {
		return ValidationError{Field: "max_retries", Value: c.MaxRetries, Message: "must not be negative"}
	}
	if c.BackoffBase <= 0 {
		return ValidationError{Field: "backoff_base", Value: c.BackoffBase, Message: "must be positive"}
	}
	if c.BackoffMultiplier < 1.0 {
		return ValidationError{Field: "backoff_multiplier", Value: c.BackoffMultiplier, Message: "must be at least 1.0"}
	}
	if c.RateLimitThreshold < 0 {
		return ValidationError{Field: "rate_limit_threshold", Value: c.RateLimitThreshold, Message: "must not be negative"}
	}
	for _, ttl := range []struct {
		name  string
		value time.Duration
	}{
		{"repo_ttl", c.RepoTTL},
		{"issue_list_ttl", c.IssueListTTL},
		{"pull_list_ttl", c.PullListTTL},
		{"workflow_ttl", c.WorkflowTTL},
		{"default_ttl", c.DefaultTTL},
	} {
		if ttl.value <= 0 {
			return ValidationError{Field: ttl.name, Value: ttl.value, Message: "must be positive"}
		}
	}
	return nil
}
