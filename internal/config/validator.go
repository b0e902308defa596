package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidationResult is the outcome of validating a candidate override
// document. Rate-limit rejections are reported through the same shape.
type ValidationResult struct {
	IsValid    bool     `json:"is_valid"`
	Errors     []string `json:"errors,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
	Usage      Usage    `json:"usage"`
}

// Validator checks candidate override documents without applying them.
// Calls are rate limited per client id.
type Validator struct {
	limiter *SlidingWindowLimiter
}

// NewValidator creates a validator with the given limiter. A nil
// limiter gets the default caps.
func NewValidator(limiter *SlidingWindowLimiter) *Validator {
	if limiter == nil {
		limiter = NewSlidingWindowLimiter(0, 0, 0)
	}
	return &Validator{limiter: limiter}
}

// Validate parses raw as a YAML override document layered over the
// current defaults and reports every violation. A rate-limited call
// returns is_valid=false with a wait suggestion and does not parse raw.
func (v *Validator) Validate(clientID string, raw []byte) ValidationResult {
	ok, wait := v.limiter.Allow(clientID)
	usage := v.limiter.Info(clientID)
	if !ok {
		return ValidationResult{
			IsValid:    false,
			Errors:     []string{"rate limit exceeded"},
			Suggestion: fmt.Sprintf("retry after %s", wait.Round(time.Millisecond)),
			Usage:      usage,
		}
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return ValidationResult{
			IsValid: false,
			Errors:  []string{"parse: " + err.Error()},
			Usage:   usage,
		}
	}
	if err := cfg.Validate(); err != nil {
		return ValidationResult{
			IsValid: false,
			Errors:  []string{err.Error()},
			Usage:   usage,
		}
	}
	return ValidationResult{IsValid: true, Usage: usage}
}
