package config

import (
	"fmt"
	"time"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

// SourceConfig selects and configures the mailbox source
type SourceConfig struct {
	Type           string
	Mailboxes      []string
	TrustedDomains []string
	DirPath        string
	Gmail          GmailConfig
	SMTP           SMTPInboxConfig
}

// GmailConfig configures the Gmail API source
type GmailConfig struct {
	CredentialsFile    string
	Query              string
	MaxResults         int64
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

// SMTPInboxConfig configures the SMTP inbox source
type SMTPInboxConfig struct {
	ListenAddress   string
	Domain          string
	MaxMessageBytes int64
	Retention       time.Duration
}

// StoreConfig configures the account and event store
type StoreConfig struct {
	Type          string
	PersistEvents bool
	SQLitePath    string
	MySQLDSN      string
}

// EngineConfig configures the scan engine
type EngineConfig struct {
	Workers            int
	CallTimeout        time.Duration
	MaxAttempts        int
	BackoffInitial     time.Duration
	BackoffMax         time.Duration
	IncrementalOverlap time.Duration
}

// RefreshConfig configures the background refresher
type RefreshConfig struct {
	Enabled      bool
	Interval     time.Duration
	FullInterval time.Duration
}

// CacheConfig configures the snapshot cache
type CacheConfig struct {
	Type             string
	Key              string
	TTL              time.Duration
	ScanTimeout      time.Duration
	Retention        time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
	RedisAddress     string
	RedisPassword    string
	RedisDB          int
}

// RiskConfig configures the risk scorer and advisor
type RiskConfig struct {
	Advisor         string
	ExternalFactors []string
	Policy          core.RiskPolicy
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// HTTPConfig configures the consumer API
type HTTPConfig struct {
	Enabled       bool
	ListenAddress string
	RoleHeader    string
}

// MetricsConfig configures the prometheus endpoint
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string
}

// durations parses every key into its target, reporting the first bad value
func (c *Config) durations(targets map[string]*time.Duration) error {
	for key, target := range targets {
		d, err := c.GetDuration(key)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		*target = d
	}
	return nil
}

// GetSource returns the mailbox source configuration
func (c *Config) GetSource() (SourceConfig, error) {
	cfg := SourceConfig{
		Type:           c.GetString("source.type"),
		Mailboxes:      c.GetStringSlice("source.mailboxes"),
		TrustedDomains: c.GetStringSlice("source.trusted_domains"),
		DirPath:        c.GetString("source.dir.path"),
		Gmail: GmailConfig{
			CredentialsFile:    c.GetString("source.gmail.credentials_file"),
			Query:              c.GetString("source.gmail.query"),
			MaxResults:         int64(c.GetInt("source.gmail.max_results")),
			BreakerMaxFailures: uint32(c.GetInt("source.gmail.breaker.max_failures")),
		},
		SMTP: SMTPInboxConfig{
			ListenAddress:   c.GetString("source.smtp.listen_address"),
			Domain:          c.GetString("source.smtp.domain"),
			MaxMessageBytes: int64(c.GetInt("source.smtp.max_message_bytes")),
		},
	}
	err := c.durations(map[string]*time.Duration{
		"source.gmail.breaker.timeout": &cfg.Gmail.BreakerTimeout,
		"source.smtp.retention":        &cfg.SMTP.Retention,
	})
	return cfg, err
}

// GetStore returns the account and event store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:          c.GetString("store.type"),
		PersistEvents: c.GetBool("store.persist_events"),
		SQLitePath:    c.GetString("store.sqlite_path"),
		MySQLDSN:      c.GetString("store.mysql_dsn"),
	}
}

// GetEngine returns the scan engine configuration
func (c *Config) GetEngine() (EngineConfig, error) {
	cfg := EngineConfig{
		Workers:     c.GetInt("engine.workers"),
		MaxAttempts: c.GetInt("engine.max_attempts"),
	}
	err := c.durations(map[string]*time.Duration{
		"engine.call_timeout":        &cfg.CallTimeout,
		"engine.backoff_initial":     &cfg.BackoffInitial,
		"engine.backoff_max":         &cfg.BackoffMax,
		"engine.incremental_overlap": &cfg.IncrementalOverlap,
	})
	return cfg, err
}

// GetRefresh returns the background refresh configuration
func (c *Config) GetRefresh() (RefreshConfig, error) {
	cfg := RefreshConfig{Enabled: c.GetBool("refresh.enabled")}
	err := c.durations(map[string]*time.Duration{
		"refresh.interval":      &cfg.Interval,
		"refresh.full_interval": &cfg.FullInterval,
	})
	return cfg, err
}

// GetCache returns the snapshot cache configuration
func (c *Config) GetCache() (CacheConfig, error) {
	cfg := CacheConfig{
		Type:          c.GetString("cache.type"),
		Key:           c.GetString("cache.key"),
		SQLitePath:    c.GetString("cache.sqlite_path"),
		MySQLDSN:      c.GetString("cache.mysql_dsn"),
		RedisAddress:  c.GetString("cache.redis.address"),
		RedisPassword: c.GetString("cache.redis.password"),
		RedisDB:       c.GetInt("cache.redis.db"),
	}
	err := c.durations(map[string]*time.Duration{
		"cache.ttl":               &cfg.TTL,
		"cache.scan_timeout":      &cfg.ScanTimeout,
		"cache.retention":         &cfg.Retention,
		"cache.cleanup_frequency": &cfg.CleanupFrequency,
	})
	return cfg, err
}

// GetRisk returns the risk scoring configuration
func (c *Config) GetRisk() (RiskConfig, error) {
	weights := map[string]int{}
	if c.v.IsSet("risk.weights") {
		if err := c.v.UnmarshalKey("risk.weights", &weights); err != nil {
			return RiskConfig{}, fmt.Errorf("invalid risk.weights: %w", err)
		}
	}
	return RiskConfig{
		Advisor:         c.GetString("risk.advisor"),
		ExternalFactors: c.GetStringSlice("risk.external_factors"),
		Policy: core.RiskPolicy{
			Weights:               weights,
			DefaultExternalWeight: c.GetInt("risk.external_weight"),
			PendingStaleDays:      c.GetInt("risk.pending_stale_days"),
			SlowBgcDays:           c.GetInt("risk.slow_bgc_days"),
			ActivationStaleDays:   c.GetInt("risk.activation_stale_days"),
		},
	}, nil
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetHTTP returns the consumer API configuration
func (c *Config) GetHTTP() HTTPConfig {
	return HTTPConfig{
		Enabled:       c.GetBool("http.enabled"),
		ListenAddress: c.GetString("http.listen_address"),
		RoleHeader:    c.GetString("http.role_header"),
	}
}

// GetMetrics returns the metrics endpoint configuration
func (c *Config) GetMetrics() MetricsConfig {
	return MetricsConfig{
		Enabled:       c.GetBool("metrics.enabled"),
		ListenAddress: c.GetString("metrics.listen_address"),
	}
}

// GetRoles returns role name -> capability names
func (c *Config) GetRoles() (map[string][]string, error) {
	roles := map[string][]string{}
	if err := c.v.UnmarshalKey("roles", &roles); err != nil {
		return nil, fmt.Errorf("invalid roles: %w", err)
	}
	return roles, nil
}

// GetClassifierRules returns the configured rules; empty means built-in
func (c *Config) GetClassifierRules() ([]core.ClassifierRule, error) {
	var rules []core.ClassifierRule
	if !c.v.IsSet("classifier.rules") {
		return nil, nil
	}
	if err := c.v.UnmarshalKey("classifier.rules", &rules); err != nil {
		return nil, fmt.Errorf("invalid classifier.rules: %w", err)
	}
	return rules, nil
}
