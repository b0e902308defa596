package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oakenlabs/textgate/pkg/errors"
)

// Options control configuration resolution. Zero values mean "consult
// the environment".
type Options struct {
	// CachePreset and ResiliencePreset override the CACHE_PRESET and
	// RESILIENCE_PRESET variables (CLI flags win over env).
	CachePreset      string
	ResiliencePreset string
	// OverrideFile is an optional YAML file applied between the preset
	// baseline and per-field env overrides.
	OverrideFile string
	// Getenv defaults to os.Getenv; injectable for tests.
	Getenv func(string) string
}

// Resolve builds a validated CoreConfig. Precedence, highest first:
// per-field env overrides, override file entries, preset baseline,
// built-in defaults.
func Resolve(opts Options) (*CoreConfig, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := defaultConfig()
	cfg.Environment = detectEnvironment(getenv)

	cachePreset := firstNonEmpty(opts.CachePreset, getenv("CACHE_PRESET"), "auto")
	if cachePreset == "auto" {
		cachePreset = inferCachePreset(cfg.Environment, getenv("ENABLE_AI_CACHE") == "true")
	}
	if err := applyCachePreset(cfg, cachePreset); err != nil {
		return nil, err
	}

	resiliencePreset := firstNonEmpty(opts.ResiliencePreset, getenv("RESILIENCE_PRESET"), "auto")
	if resiliencePreset == "auto" {
		resiliencePreset = inferResiliencePreset(cfg.Environment)
	}
	if err := applyResiliencePreset(cfg, resiliencePreset); err != nil {
		return nil, err
	}

	if opts.OverrideFile != "" {
		if err := applyOverrideFile(cfg, opts.OverrideFile); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg, getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// detectEnvironment inspects deployment variables in strict precedence
// and classifies by exact match, then by substring patterns. No signal
// means development.
func detectEnvironment(getenv func(string) string) Environment {
	for _, name := range []string{"ENVIRONMENT", "NODE_ENV", "APP_ENV", "DEPLOYMENT_ENV"} {
		raw := strings.ToLower(strings.TrimSpace(getenv(name)))
		if raw == "" {
			continue
		}
		switch raw {
		case "development", "staging", "production":
			return Environment(raw)
		}
		switch {
		case containsAny(raw, "prod", "live", "release"):
			return EnvProduction
		case containsAny(raw, "stag", "uat", "preprod"):
			return EnvStaging
		case containsAny(raw, "dev", "local", "test", "sandbox"):
			return EnvDevelopment
		}
	}
	return EnvDevelopment
}

func inferCachePreset(env Environment, aiCache bool) string {
	base := "development"
	if env == EnvProduction || env == EnvStaging {
		base = "production"
	}
	if aiCache {
		return "ai-" + base
	}
	return base
}

func inferResiliencePreset(env Environment) string {
	if env == EnvProduction || env == EnvStaging {
		return "production"
	}
	return "development"
}

func applyCachePreset(cfg *CoreConfig, name string) error {
	preset, ok := cachePresets[name]
	if !ok {
		return errors.NewConfiguration("unknown cache preset " + strconv.Quote(name) + " (valid: " + strings.Join(CachePresetNames(), ", ") + ")")
	}
	cfg.Cache.Preset = preset.Name
	cfg.Cache.DefaultTTL = preset.DefaultTTL
	cfg.Cache.MemoryCacheSize = preset.MemoryCacheSize
	cfg.Cache.CompressionLevel = preset.CompressionLevel
	cfg.Cache.CompressionThreshold = preset.CompressionThreshold
	cfg.Cache.AIOptimized = preset.AIOptimized
	if preset.AIOptimized {
		cfg.Cache.TextHashThreshold = preset.TextHashThreshold
		cfg.Cache.TextSizeTiers = cloneTiers(defaultTextSizeTiers)
	}
	return nil
}

func applyResiliencePreset(cfg *CoreConfig, name string) error {
	preset, ok := resiliencePresets[name]
	if !ok {
		return errors.NewConfiguration("unknown resilience preset " + strconv.Quote(name))
	}
	cfg.Resilience.Preset = preset.Name
	cfg.Resilience.DefaultStrategy = preset.DefaultStrategy
	cfg.Resilience.OperationStrategies = nil
	if len(preset.OperationStrategies) > 0 {
		cfg.Resilience.OperationStrategies = make(map[string]string, len(preset.OperationStrategies))
		for op, s := range preset.OperationStrategies {
			cfg.Resilience.OperationStrategies[op] = s
		}
	}
	return nil
}

// applyOverrideFile merges a YAML file over the preset baseline.
// ${VAR} references in the file are expanded before parsing.
func applyOverrideFile(cfg *CoreConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.NewConfiguration("read override file: " + err.Error())
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return errors.NewConfiguration("parse override file: " + err.Error())
	}
	return nil
}

func applyEnvOverrides(cfg *CoreConfig, getenv func(string) string) error {
	intVars := []struct {
		name string
		dst  *int
	}{
		{"CACHE_DEFAULT_TTL", &cfg.Cache.DefaultTTL},
		{"CACHE_MEMORY_SIZE", &cfg.Cache.MemoryCacheSize},
		{"CACHE_COMPRESSION_LEVEL", &cfg.Cache.CompressionLevel},
		{"CACHE_COMPRESSION_THRESHOLD", &cfg.Cache.CompressionThreshold},
		{"CACHE_TEXT_HASH_THRESHOLD", &cfg.Cache.TextHashThreshold},
		{"CACHE_PROMOTION_THRESHOLD", &cfg.Cache.PromotionThreshold},
		{"CACHE_MAX_CONNECTIONS", &cfg.Cache.MaxConnections},
		{"CACHE_CONNECTION_TIMEOUT", &cfg.Cache.ConnectionTimeout},
		{"RESILIENCE_MAX_ATTEMPTS", &cfg.Resilience.MaxAttemptsOverride},
		{"BATCH_CONCURRENCY_LIMIT", &cfg.AI.BatchConcurrencyLimit},
		{"BATCH_MAX_ITEMS", &cfg.AI.BatchMaxItems},
		{"MAX_INPUT_CHARS", &cfg.AI.MaxInputChars},
		{"TENANT_RPM_LIMIT", &cfg.Auth.TenantRPMLimit},
	}
	for _, v := range intVars {
		raw := getenv(v.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return errors.NewConfiguration(v.name + " must be an integer, got " + strconv.Quote(raw))
		}
		*v.dst = n
	}

	if v := getenv("REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := getenv("REDIS_ENCRYPTION_KEY"); v != "" {
		cfg.Cache.EncryptionKey = v
	}
	if v := getenv("USE_TLS"); v != "" {
		cfg.Cache.UseTLS = v == "true" || v == "1"
	}
	if v := getenv("TLS_CERT_PATH"); v != "" {
		cfg.Cache.TLSCertPath = v
	}
	if v := getenv("TLS_KEY_PATH"); v != "" {
		cfg.Cache.TLSKeyPath = v
	}
	if v := getenv("API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := getenv("ADDITIONAL_API_KEYS"); v != "" {
		cfg.Auth.AdditionalAPIKeys = strings.Split(v, ",")
	}
	if v := getenv("GEMINI_API_KEY"); v != "" {
		cfg.AI.GeminiAPIKey = v
	}
	if v := getenv("GEMINI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := getenv("ENABLE_MONITORING"); v != "" {
		cfg.Logging.EnableMonitoring = v == "true" || v == "1"
	}
	if v := getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func cloneTiers(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
