package config

import (
	"fmt"

	"github.com/fernet/fernet-go"

	"github.com/oakenlabs/textgate/pkg/errors"
)

// Validate enforces every range and production invariant. The first
// violation is returned as a configuration error.
func (c *CoreConfig) Validate() error {
	if err := c.Cache.validate(c.Environment); err != nil {
		return err
	}
	if err := c.Resilience.validate(); err != nil {
		return err
	}
	if err := c.AI.validate(); err != nil {
		return err
	}

	if c.Environment == EnvProduction || c.Environment == EnvStaging {
		if len(c.Auth.Keys()) == 0 {
			return errors.NewConfiguration(
				"no API keys configured for " + string(c.Environment) +
					"; set API_KEY (and optionally ADDITIONAL_API_KEYS)")
		}
	}
	return nil
}

func (c CacheConfig) validate(env Environment) error {
	if c.DefaultTTL < 60 || c.DefaultTTL > 604800 {
		return rangeErr("cache.default_ttl", c.DefaultTTL, 60, 604800)
	}
	if c.MaxConnections < 1 || c.MaxConnections > 100 {
		return rangeErr("cache.max_connections", c.MaxConnections, 1, 100)
	}
	if c.ConnectionTimeout < 1 || c.ConnectionTimeout > 30 {
		return rangeErr("cache.connection_timeout", c.ConnectionTimeout, 1, 30)
	}
	if c.CompressionLevel != 0 && (c.CompressionLevel < 1 || c.CompressionLevel > 9) {
		return rangeErr("cache.compression_level", c.CompressionLevel, 1, 9)
	}
	if c.CompressionThreshold < 0 || c.CompressionThreshold > 1048576 {
		return rangeErr("cache.compression_threshold", c.CompressionThreshold, 0, 1048576)
	}
	if c.MemoryCacheSize < 1 || c.MemoryCacheSize > 10000 {
		return rangeErr("cache.memory_cache_size", c.MemoryCacheSize, 1, 10000)
	}

	if c.AIOptimized {
		if c.TextHashThreshold < 100 || c.TextHashThreshold > 100000 {
			return rangeErr("cache.text_hash_threshold", c.TextHashThreshold, 100, 100000)
		}
		small, okS := c.TextSizeTiers["small"]
		medium, okM := c.TextSizeTiers["medium"]
		large, okL := c.TextSizeTiers["large"]
		if !okS || !okM || !okL || len(c.TextSizeTiers) != 3 {
			return errors.NewConfiguration("cache.text_size_tiers must define exactly small, medium, large")
		}
		if small <= 0 || medium <= small || large <= medium {
			return errors.NewConfiguration("cache.text_size_tiers must be strictly increasing positive integers")
		}
	}

	if c.EncryptionKey != "" {
		if _, err := fernet.DecodeKey(c.EncryptionKey); err != nil {
			return errors.NewConfiguration("cache.encryption_key is not a valid Fernet key")
		}
	} else if c.RemoteEnabled() && env == EnvProduction {
		return errors.NewConfiguration(
			"remote cache in production requires REDIS_ENCRYPTION_KEY (urlsafe-base64 32-byte Fernet key)")
	}
	return nil
}

func (r ResilienceConfig) validate() error {
	if !validStrategy(r.DefaultStrategy) {
		return errors.NewConfiguration("resilience.default_strategy must be aggressive, balanced, or conservative")
	}
	for op, s := range r.OperationStrategies {
		if !validStrategy(s) {
			return errors.NewConfiguration(fmt.Sprintf("resilience strategy %q for operation %q is not recognized", s, op))
		}
	}
	if r.MaxAttemptsOverride < 0 || r.MaxAttemptsOverride > 10 {
		return rangeErr("resilience.max_attempts_override", r.MaxAttemptsOverride, 0, 10)
	}
	return nil
}

func (a AIConfig) validate() error {
	if a.BatchConcurrencyLimit < 1 || a.BatchConcurrencyLimit > 50 {
		return rangeErr("ai.batch_concurrency_limit", a.BatchConcurrencyLimit, 1, 50)
	}
	if a.BatchMaxItems < 1 {
		return rangeErr("ai.batch_max_items", a.BatchMaxItems, 1, 10000)
	}
	if a.MaxInputChars < 1 {
		return rangeErr("ai.max_input_chars", a.MaxInputChars, 1, 10000000)
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		return errors.NewConfiguration(fmt.Sprintf("ai.temperature %v out of range [0, 2]", a.Temperature))
	}
	return nil
}

func validStrategy(s string) bool {
	switch s {
	case "aggressive", "balanced", "conservative":
		return true
	}
	return false
}

func rangeErr(field string, got, lo, hi int) error {
	return errors.NewConfiguration(fmt.Sprintf("%s %d out of range [%d, %d]", field, got, lo, hi))
}
