// Package auth implements API key validation and per-tenant request
// rate limiting.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"sync"

	"github.com/oakenlabs/textgate/internal/config"
	"github.com/oakenlabs/textgate/internal/observability"
	"github.com/oakenlabs/textgate/pkg/errors"
)

// openModeIdentity is assigned to every request when development runs
// with zero configured keys.
const openModeIdentity = "development"

// Store holds the API key set. Lookups are hot-path reads under an
// RWMutex; Reload is the only writer.
type Store struct {
	mu        sync.RWMutex
	keys      map[string]string // key -> identity
	openMode  bool
	env       config.Environment
	log       *observability.Logger
	lookupEnv func(string) string
}

// Status is the operator-facing view of the store. It never carries
// key material.
type Status struct {
	KeyCount    int    `json:"key_count"`
	Environment string `json:"environment"`
	OpenMode    bool   `json:"open_mode"`
}

// NewStore builds the store from the resolved auth config. Production
// and staging require at least one key; development with zero keys
// enters open mode with a warning.
func NewStore(cfg config.AuthConfig, env config.Environment, log *observability.Logger) (*Store, error) {
	s := &Store{
		env:       env,
		log:       log,
		lookupEnv: os.Getenv,
	}
	if err := s.load(cfg.Keys()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(keys []string) error {
	keyMap := make(map[string]string, len(keys))
	for _, k := range keys {
		keyMap[k] = identityFor(k)
	}

	openMode := len(keyMap) == 0
	if openMode && (s.env == config.EnvProduction || s.env == config.EnvStaging) {
		return errors.NewConfiguration(
			"no API keys configured for " + string(s.env) +
				"; set API_KEY (and optionally ADDITIONAL_API_KEYS)")
	}

	s.mu.Lock()
	s.keys = keyMap
	s.openMode = openMode
	s.mu.Unlock()

	if openMode {
		s.log.RedactedWarn("no API keys configured, running in open mode",
			"environment", string(s.env))
	}
	return nil
}

// Validate checks a presented key. In open mode every key, including
// an empty one, maps to the development identity.
func (s *Store) Validate(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.openMode {
		return openModeIdentity, true
	}
	identity, ok := s.keys[key]
	return identity, ok
}

// Reload re-reads API_KEY and ADDITIONAL_API_KEYS from the
// environment. A reload that would violate the production key
// invariant fails and keeps the previous key set.
func (s *Store) Reload() error {
	cfg := config.AuthConfig{
		APIKey: s.lookupEnv("API_KEY"),
	}
	if extra := s.lookupEnv("ADDITIONAL_API_KEYS"); extra != "" {
		cfg.AdditionalAPIKeys = strings.Split(extra, ",")
	}
	if err := s.load(cfg.Keys()); err != nil {
		return err
	}
	s.log.RedactedInfo("api keys reloaded", "key_count", len(cfg.Keys()))
	return nil
}

// Status returns counts and mode, never key material.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		KeyCount:    len(s.keys),
		Environment: string(s.env),
		OpenMode:    s.openMode,
	}
}

// identityFor derives a stable, loggable identity from a key without
// exposing the key itself.
func identityFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "key-" + hex.EncodeToString(sum[:])[:8]
}
