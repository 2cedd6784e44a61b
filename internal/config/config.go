package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/bgc-lifecycle/")
	v.AddConfigPath("$HOME/.bgc-lifecycle")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("BGC_LIFECYCLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromFile loads a specific config file on top of the defaults
func NewFromFile(path string) (*Config, error) {
	v := NewEmptyViper()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvPrefix("BGC_LIFECYCLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Mailbox source defaults
	v.SetDefault("source.type", "dir")
	v.SetDefault("source.mailboxes", []string{"INBOX"})
	v.SetDefault("source.trusted_domains", []string{})
	v.SetDefault("source.dir.path", "./mail")
	v.SetDefault("source.gmail.credentials_file", "/etc/bgc-lifecycle/service-account.json")
	v.SetDefault("source.gmail.query", "")
	v.SetDefault("source.gmail.max_results", 500)
	v.SetDefault("source.gmail.breaker.max_failures", 5)
	v.SetDefault("source.gmail.breaker.timeout", "30s")
	v.SetDefault("source.smtp.listen_address", "0.0.0.0:2525")
	v.SetDefault("source.smtp.domain", "localhost")
	v.SetDefault("source.smtp.max_message_bytes", 10*1024*1024)
	v.SetDefault("source.smtp.retention", "2160h")

	// Account and event store defaults
	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.persist_events", true)
	v.SetDefault("store.sqlite_path", "/data/bgc_lifecycle.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/bgc_lifecycle?parseTime=true")

	// Engine defaults
	v.SetDefault("engine.workers", 8)
	v.SetDefault("engine.call_timeout", "15s")
	v.SetDefault("engine.max_attempts", 3)
	v.SetDefault("engine.backoff_initial", "500ms")
	v.SetDefault("engine.backoff_max", "5s")
	v.SetDefault("engine.incremental_overlap", "24h")

	// Refresh defaults
	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.interval", "60s")
	v.SetDefault("refresh.full_interval", "24h")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.key", "global_bgc_scan")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.scan_timeout", "10m")
	v.SetDefault("cache.retention", "168h")
	v.SetDefault("cache.cleanup_frequency", "1h")
	v.SetDefault("cache.sqlite_path", "/data/bgc_snapshots.db")
	v.SetDefault("cache.mysql_dsn", "user:password@tcp(localhost:3306)/bgc_lifecycle?parseTime=true")
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)

	// Risk defaults
	v.SetDefault("risk.advisor", "none")
	v.SetDefault("risk.external_factors", []string{})
	v.SetDefault("risk.external_weight", 10)
	v.SetDefault("risk.pending_stale_days", 14)
	v.SetDefault("risk.slow_bgc_days", 30)
	v.SetDefault("risk.activation_stale_days", 30)

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.max_body_size", 4096)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 1000)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.max_body_size", 4096)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model_name", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.max_body_size", 4096)

	// HTTP API defaults
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen_address", "0.0.0.0:8080")
	v.SetDefault("http.role_header", "X-Role")
	v.SetDefault("roles", map[string][]string{
		"admin":   {"all"},
		"analyst": {"view_lifecycle", "view_drift", "view_risk", "view_stats"},
		"support": {"view_lifecycle"},
	})

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_address", "0.0.0.0:9090")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// Set overrides a value, used by CLI flags
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
