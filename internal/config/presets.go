package config

import (
	"fmt"
	"sort"
)

// CachePreset is a vetted bundle of cache settings.
type CachePreset struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	DefaultTTL           int      `json:"default_ttl"`
	MemoryCacheSize      int      `json:"memory_cache_size"`
	CompressionLevel     int      `json:"compression_level"` // 0 disables
	CompressionThreshold int      `json:"compression_threshold"`
	AIOptimized          bool     `json:"ai_optimized"`
	TextHashThreshold    int      `json:"text_hash_threshold,omitempty"`
	Environments         []string `json:"environments"`
}

// defaultTextSizeTiers classifies input size for metrics. Strictly
// increasing: small < medium < large; anything above large is xlarge.
var defaultTextSizeTiers = map[string]int{
	"small":  500,
	"medium": 5000,
	"large":  50000,
}

var cachePresets = map[string]CachePreset{
	"disabled": {
		Name:            "disabled",
		Description:     "Near-zero caching for test isolation",
		DefaultTTL:      300,
		MemoryCacheSize: 10,
		Environments:    []string{"testing"},
	},
	"minimal": {
		Name:            "minimal",
		Description:     "Small footprint for embedded deployments",
		DefaultTTL:      900,
		MemoryCacheSize: 25,
		Environments:    []string{"embedded"},
	},
	"simple": {
		Name:                 "simple",
		Description:          "Balanced defaults suitable anywhere",
		DefaultTTL:           3600,
		MemoryCacheSize:      100,
		CompressionLevel:     6,
		CompressionThreshold: 1024,
		Environments:         []string{"any"},
	},
	"development": {
		Name:                 "development",
		Description:          "Short TTLs for fast iteration",
		DefaultTTL:           600,
		MemoryCacheSize:      50,
		CompressionLevel:     3,
		CompressionThreshold: 2048,
		Environments:         []string{"development"},
	},
	"production": {
		Name:                 "production",
		Description:          "Long TTLs, aggressive compression",
		DefaultTTL:           7200,
		MemoryCacheSize:      500,
		CompressionLevel:     9,
		CompressionThreshold: 512,
		Environments:         []string{"production", "staging"},
	},
	"ai-development": {
		Name:                 "ai-development",
		Description:          "AI-optimized keys with development TTLs",
		DefaultTTL:           1800,
		MemoryCacheSize:      100,
		CompressionLevel:     6,
		CompressionThreshold: 1024,
		AIOptimized:          true,
		TextHashThreshold:    1000,
		Environments:         []string{"ai-development"},
	},
	"ai-production": {
		Name:                 "ai-production",
		Description:          "AI-optimized keys tuned for production load",
		DefaultTTL:           14400,
		MemoryCacheSize:      1000,
		CompressionLevel:     9,
		CompressionThreshold: 300,
		AIOptimized:          true,
		TextHashThreshold:    1000,
		Environments:         []string{"ai-production"},
	},
}

// ResiliencePreset maps operations to strategies.
type ResiliencePreset struct {
	Name                string            `json:"name"`
	Description         string            `json:"description"`
	DefaultStrategy     string            `json:"default_strategy"`
	OperationStrategies map[string]string `json:"operation_strategies,omitempty"`
}

var resiliencePresets = map[string]ResiliencePreset{
	"simple": {
		Name:            "simple",
		Description:     "Balanced strategy for every operation",
		DefaultStrategy: "balanced",
	},
	"development": {
		Name:            "development",
		Description:     "Fail fast during development",
		DefaultStrategy: "aggressive",
	},
	"production": {
		Name:            "production",
		Description:     "Per-operation strategies for production traffic",
		DefaultStrategy: "balanced",
		OperationStrategies: map[string]string{
			"qa":         "conservative",
			"summarize":  "balanced",
			"key_points": "balanced",
			"questions":  "balanced",
			"sentiment":  "aggressive",
		},
	},
}

// PresetDetails is the operator-facing descriptor for one preset.
type PresetDetails struct {
	Cache      *CachePreset      `json:"cache,omitempty"`
	Resilience *ResiliencePreset `json:"resilience,omitempty"`
}

// GetPresetDetails returns the descriptor for a named preset, cache or
// resilience. Unknown names return an error listing the valid set.
func GetPresetDetails(name string) (PresetDetails, error) {
	if p, ok := cachePresets[name]; ok {
		return PresetDetails{Cache: &p}, nil
	}
	if p, ok := resiliencePresets[name]; ok {
		return PresetDetails{Resilience: &p}, nil
	}
	return PresetDetails{}, fmt.Errorf("unknown preset %q (valid: %s)", name, presetNames())
}

// CachePresetNames returns the sorted cache preset names.
func CachePresetNames() []string {
	names := make([]string, 0, len(cachePresets))
	for name := range cachePresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func presetNames() string {
	names := CachePresetNames()
	for name := range resiliencePresets {
		names = append(names, name)
	}
	sort.Strings(names)
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
