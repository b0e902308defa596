// Package config resolves a named preset plus environment overrides
// into a frozen CoreConfig. Resolution is fail-fast: an invalid
// combination never produces a partially usable config.
package config

import (
	"strings"
	"time"
)

// Environment classifies the deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// CoreConfig is the resolved, immutable service configuration.
// It is created once at process start and never mutated.
type CoreConfig struct {
	Cache       CacheConfig       `yaml:"cache"`
	Resilience  ResilienceConfig  `yaml:"resilience"`
	AI          AIConfig          `yaml:"ai"`
	Auth        AuthConfig        `yaml:"auth"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Environment Environment       `yaml:"environment"`
}

// CacheConfig controls both cache tiers and the codec.
type CacheConfig struct {
	Preset               string         `yaml:"preset"`
	DefaultTTL           int            `yaml:"default_ttl"` // seconds
	MemoryCacheSize      int            `yaml:"memory_cache_size"`
	CompressionLevel     int            `yaml:"compression_level"`     // 0 disables
	CompressionThreshold int            `yaml:"compression_threshold"` // bytes
	AIOptimized          bool           `yaml:"ai_optimized"`
	TextHashThreshold    int            `yaml:"text_hash_threshold"`
	TextSizeTiers        map[string]int `yaml:"text_size_tiers"`
	PromotionThreshold   int            `yaml:"promotion_threshold"` // bytes; 0 = always promote

	RedisURL          string `yaml:"redis_url"`
	RedisPassword     string `yaml:"redis_password"`
	UseTLS            bool   `yaml:"use_tls"`
	TLSCertPath       string `yaml:"tls_cert_path"`
	TLSKeyPath        string `yaml:"tls_key_path"`
	MaxConnections    int    `yaml:"max_connections"`
	ConnectionTimeout int    `yaml:"connection_timeout"` // seconds
	EncryptionKey     string `yaml:"encryption_key"`
}

// RemoteEnabled reports whether a remote tier is configured.
func (c CacheConfig) RemoteEnabled() bool {
	return c.RedisURL != ""
}

// ResilienceConfig binds operations to retry/breaker strategies.
type ResilienceConfig struct {
	Preset              string            `yaml:"preset"`
	DefaultStrategy     string            `yaml:"default_strategy"`
	OperationStrategies map[string]string `yaml:"operation_strategies"`
	// MaxAttemptsOverride, when positive, replaces every strategy's
	// attempt budget. Set via RESILIENCE_MAX_ATTEMPTS.
	MaxAttemptsOverride int `yaml:"max_attempts_override"`
}

// StrategyFor returns the strategy name bound to an operation.
func (r ResilienceConfig) StrategyFor(operation string) string {
	if s, ok := r.OperationStrategies[operation]; ok {
		return s
	}
	return r.DefaultStrategy
}

// AIConfig holds provider connectivity and request bounds.
type AIConfig struct {
	GeminiAPIKey          string  `yaml:"gemini_api_key"`
	Model                 string  `yaml:"model"`
	Temperature           float64 `yaml:"temperature"`
	MaxInputChars         int     `yaml:"max_input_chars"`
	MaxQuestionChars      int     `yaml:"max_question_chars"`
	BatchConcurrencyLimit int     `yaml:"batch_concurrency_limit"`
	BatchMaxItems         int     `yaml:"batch_max_items"`
}

// AuthConfig holds API key material and tenant limits.
type AuthConfig struct {
	APIKey            string   `yaml:"api_key"`
	AdditionalAPIKeys []string `yaml:"additional_api_keys"`
	TenantRPMLimit    int      `yaml:"tenant_rpm_limit"`
}

// Keys returns all configured API keys, trimmed, empties skipped.
func (a AuthConfig) Keys() []string {
	keys := make([]string, 0, 1+len(a.AdditionalAPIKeys))
	if k := strings.TrimSpace(a.APIKey); k != "" {
		keys = append(keys, k)
	}
	for _, k := range a.AdditionalAPIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// LoggingConfig contains observability settings.
type LoggingConfig struct {
	Level            string `yaml:"level"`
	EnableMonitoring bool   `yaml:"enable_monitoring"`
}

// defaultConfig returns the built-in baseline, lowest in precedence.
func defaultConfig() *CoreConfig {
	return &CoreConfig{
		Cache: CacheConfig{
			Preset:               "simple",
			DefaultTTL:           3600,
			MemoryCacheSize:      100,
			CompressionLevel:     6,
			CompressionThreshold: 1024,
			MaxConnections:       10,
			ConnectionTimeout:    5,
		},
		Resilience: ResilienceConfig{
			Preset:          "simple",
			DefaultStrategy: "balanced",
		},
		AI: AIConfig{
			Model:                 "gemini-2.0-flash",
			Temperature:           0.3,
			MaxInputChars:         100000,
			MaxQuestionChars:      1000,
			BatchConcurrencyLimit: 10,
			BatchMaxItems:         200,
		},
		Auth: AuthConfig{
			TenantRPMLimit: 300,
		},
		Server: ServerConfig{
			ListenAddr:   ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Environment: EnvDevelopment,
	}
}
