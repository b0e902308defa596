// Package resilience wraps outbound provider calls in a per-operation
// circuit breaker, retry policy, timeout, and typed fallback.
package resilience

import (
	"fmt"
	"time"
)

// Strategy is a frozen retry/breaker parameter bundle.
type Strategy struct {
	Name                      string
	MaxAttempts               int
	BaseBackoff               time.Duration
	MaxBackoff                time.Duration
	Timeout                   time.Duration
	FailureThreshold          int
	Cooldown                  time.Duration
	HalfOpenRequiredSuccesses int
}

var strategies = map[string]Strategy{
	"aggressive": {
		Name:                      "aggressive",
		MaxAttempts:               2,
		BaseBackoff:               100 * time.Millisecond,
		MaxBackoff:                time.Second,
		Timeout:                   5 * time.Second,
		FailureThreshold:          3,
		Cooldown:                  5 * time.Second,
		HalfOpenRequiredSuccesses: 1,
	},
	"balanced": {
		Name:                      "balanced",
		MaxAttempts:               3,
		BaseBackoff:               250 * time.Millisecond,
		MaxBackoff:                4 * time.Second,
		Timeout:                   15 * time.Second,
		FailureThreshold:          5,
		Cooldown:                  15 * time.Second,
		HalfOpenRequiredSuccesses: 2,
	},
	"conservative": {
		Name:                      "conservative",
		MaxAttempts:               5,
		BaseBackoff:               500 * time.Millisecond,
		MaxBackoff:                15 * time.Second,
		Timeout:                   45 * time.Second,
		FailureThreshold:          8,
		Cooldown:                  60 * time.Second,
		HalfOpenRequiredSuccesses: 3,
	},
}

// StrategyByName returns the named strategy preset.
func StrategyByName(name string) (Strategy, error) {
	s, ok := strategies[name]
	if !ok {
		return Strategy{}, fmt.Errorf("unknown resilience strategy %q", name)
	}
	return s, nil
}

// backoffFor computes the exponential delay cap for the given attempt
// (1-based). The caller applies full jitter over [0, delay].
func (s Strategy) backoffFor(attempt int) time.Duration {
	d := s.BaseBackoff << (attempt - 1)
	if d > s.MaxBackoff || d <= 0 {
		return s.MaxBackoff
	}
	return d
}
