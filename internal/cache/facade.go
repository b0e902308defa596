package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/oakenlabs/textgate/internal/config"
	"github.com/oakenlabs/textgate/internal/metrics"
	"github.com/oakenlabs/textgate/internal/observability"
)

// remoteCooldown is how long remote calls are short-circuited after a
// remote tier failure.
const remoteCooldown = 30 * time.Second

// Facade is the public cache interface: L1-first reads with remote
// backfill, write-through sets, single-flight computes, and graceful
// degradation to L1-only when the remote tier misbehaves. Remote errors
// are swallowed and metered; Get never returns an error.
type Facade struct {
	l1     *memoryTier
	remote remoteTier // nil when not configured
	codec  *codec
	keygen *KeyGenerator
	log    *observability.Logger

	defaultTTL         time.Duration
	promotionThreshold int

	group singleflight.Group
	stats counters

	// Remote health gate: one failure opens it for remoteCooldown.
	gateMu       sync.Mutex
	gateOpenedAt time.Time
	now          func() time.Time

	warnedMu       sync.Mutex
	warnedPrefixes map[string]struct{}
}

// NewFacade builds a facade from the cache config. A configured Redis
// URL enables the remote tier; connection failures degrade at runtime
// rather than failing construction.
func NewFacade(cfg config.CacheConfig, log *observability.Logger) (*Facade, error) {
	var remote remoteTier
	if cfg.RemoteEnabled() {
		tier, err := newRedisTier(cfg)
		if err != nil {
			return nil, err
		}
		remote = tier
	}
	return newFacade(cfg, remote, log)
}

func newFacade(cfg config.CacheConfig, remote remoteTier, log *observability.Logger) (*Facade, error) {
	cdc, err := newCodec(cfg.CompressionLevel, cfg.CompressionThreshold, cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	f := &Facade{
		remote:             remote,
		codec:              cdc,
		keygen:             NewKeyGenerator(cfg.TextHashThreshold, cfg.TextSizeTiers),
		log:                log,
		defaultTTL:         time.Duration(cfg.DefaultTTL) * time.Second,
		promotionThreshold: cfg.PromotionThreshold,
		now:                time.Now,
		warnedPrefixes:     make(map[string]struct{}),
	}
	f.l1 = newMemoryTier(cfg.MemoryCacheSize, func(cause evictCause) {
		switch cause {
		case evictLRU:
			f.stats.evictionsLRU.Add(1)
		case evictTTL:
			f.stats.evictionsTTL.Add(1)
		}
		metrics.CacheEvictions.WithLabelValues(string(cause)).Inc()
	})
	return f, nil
}

// BuildKey derives the deterministic cache key for one request.
func (f *Facade) BuildKey(operation, text string, options map[string]any, question string) string {
	return f.keygen.BuildKey(operation, text, options, question)
}

// SizeTier exposes the metrics-only input size classification.
func (f *Facade) SizeTier(text string) string {
	return f.keygen.SizeTier(text)
}

// Get returns the cached payload for key. It never returns an error:
// every tier failure reads as a miss.
func (f *Facade) Get(ctx context.Context, key string) ([]byte, bool) {
	return f.lookup(ctx, key, true)
}

func (f *Facade) lookup(ctx context.Context, key string, countMiss bool) ([]byte, bool) {
	if blob, ok := f.l1.Get(key); ok {
		if payload, err := f.decode(key, blob); err == nil {
			f.stats.hitsL1.Add(1)
			metrics.CacheHits.WithLabelValues("l1").Inc()
			return payload, true
		}
	}

	if f.remote != nil && f.gateAllows() {
		blob, err := f.remote.Get(ctx, key)
		switch {
		case err != nil:
			f.remoteFailed("get", err)
		case blob != nil:
			payload, derr := f.decode(key, blob)
			if derr == nil {
				f.stats.hitsRemote.Add(1)
				metrics.CacheHits.WithLabelValues("remote").Inc()
				f.promote(key, blob)
				return payload, true
			}
		}
	}

	if countMiss {
		f.stats.misses.Add(1)
		metrics.CacheMisses.Inc()
	}
	return nil, false
}

// promote backfills a remote hit into L1. Small entries may be skipped
// when a promotion threshold is configured.
func (f *Facade) promote(key string, blob []byte) {
	if f.promotionThreshold > 0 && len(blob) < f.promotionThreshold {
		return
	}
	f.l1.Set(key, blob, f.defaultTTL)
}

// Set stores payload under key. ttl <= 0 uses the default TTL. Remote
// failures are swallowed; the L1 write always happens.
func (f *Facade) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = f.defaultTTL
	}

	blob, compressed, err := f.codec.Encode(payload)
	if err != nil {
		f.log.RedactedError("cache encode failed", "error", err)
		return
	}
	if compressed {
		f.stats.compressions.Add(1)
		metrics.CacheCompressions.Inc()
	}

	f.l1.Set(key, blob, ttl)
	f.stats.sets.Add(1)
	f.stats.bytesStored.Add(int64(len(blob)))
	metrics.CacheSets.WithLabelValues("l1").Inc()
	metrics.CacheStoredBytes.WithLabelValues("l1").Add(float64(len(blob)))

	if f.remote != nil && f.gateAllows() {
		if err := f.remote.Set(ctx, key, blob, ttl); err != nil {
			f.remoteFailed("set", err)
		} else {
			metrics.CacheSets.WithLabelValues("remote").Inc()
			metrics.CacheStoredBytes.WithLabelValues("remote").Add(float64(len(blob)))
		}
	}
}

// GetOrCompute returns the cached payload for key, or runs producer to
// compute it. Identical concurrent calls share a single producer run.
// Producer errors propagate and nothing is cached.
func (f *Facade) GetOrCompute(ctx context.Context, key string, ttl time.Duration, producer func(context.Context) ([]byte, error)) ([]byte, error) {
	if payload, ok := f.lookup(ctx, key, false); ok {
		return payload, nil
	}

	v, err, _ := f.group.Do(key, func() (any, error) {
		f.stats.inFlight.Add(1)
		metrics.CacheInFlightComputes.Inc()
		defer func() {
			f.stats.inFlight.Add(-1)
			metrics.CacheInFlightComputes.Dec()
		}()

		// Re-check under the flight: a sibling may have stored the
		// value between our miss and winning the flight.
		if payload, ok := f.lookup(ctx, key, true); ok {
			return payload, nil
		}

		payload, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		f.Set(ctx, key, payload, ttl)
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate removes every key matching the glob pattern from both
// tiers and returns the number removed.
func (f *Facade) Invalidate(ctx context.Context, pattern string) int {
	removed := f.l1.DeletePattern(pattern)
	if f.remote != nil && f.gateAllows() {
		n, err := f.remote.DeletePattern(ctx, pattern)
		if err != nil {
			f.remoteFailed("invalidate", err)
		}
		removed += n
	}
	return removed
}

// RemoteOK reports remote reachability for health checks. An open gate
// answers false without I/O.
func (f *Facade) RemoteOK(ctx context.Context) bool {
	if f.remote == nil {
		return false
	}
	if !f.gateAllows() {
		return false
	}
	if err := f.remote.Ping(ctx); err != nil {
		f.remoteFailed("ping", err)
		return false
	}
	return true
}

// RemoteConfigured reports whether a remote tier exists at all.
func (f *Facade) RemoteConfigured() bool {
	return f.remote != nil
}

// Stats returns a counters snapshot.
func (f *Facade) Stats() Stats {
	s := f.stats.snapshot()
	s.L1Size = f.l1.Len()
	return s
}

// Close releases the remote connection, if any.
func (f *Facade) Close() error {
	if f.remote != nil {
		return f.remote.Close()
	}
	return nil
}

func (f *Facade) decode(key string, blob []byte) ([]byte, error) {
	payload, err := f.codec.Decode(blob)
	if err == nil {
		return payload, nil
	}
	if errors.Is(err, errDecrypt) {
		f.stats.decryptionFailures.Add(1)
		metrics.CacheDecryptFailures.Inc()
		f.warnOncePerPrefix(key)
	} else {
		f.log.RedactedWarn("cache decode failed", "error", err)
	}
	return nil, err
}

// warnOncePerPrefix logs a single migration warning per "v1|op" prefix
// when decryption fails, so unencrypted legacy blobs do not flood logs.
func (f *Facade) warnOncePerPrefix(key string) {
	prefix := key
	if parts := strings.SplitN(key, "|", 3); len(parts) >= 2 {
		prefix = parts[0] + "|" + parts[1]
	}

	f.warnedMu.Lock()
	_, seen := f.warnedPrefixes[prefix]
	if !seen {
		f.warnedPrefixes[prefix] = struct{}{}
	}
	f.warnedMu.Unlock()

	if !seen {
		f.log.RedactedWarn("cache decryption failed, treating as miss", "key_prefix", prefix)
	}
}

func (f *Facade) gateAllows() bool {
	f.gateMu.Lock()
	defer f.gateMu.Unlock()
	if f.gateOpenedAt.IsZero() {
		return true
	}
	if f.now().Sub(f.gateOpenedAt) >= remoteCooldown {
		f.gateOpenedAt = time.Time{}
		return true
	}
	return false
}

func (f *Facade) remoteFailed(op string, err error) {
	f.stats.remoteErrors.Add(1)
	metrics.CacheRemoteErrors.WithLabelValues(op).Inc()

	f.gateMu.Lock()
	f.gateOpenedAt = f.now()
	f.gateMu.Unlock()

	f.log.RedactedWarn("remote cache degraded, continuing on L1",
		"op", op, "error", err, "cooldown", remoteCooldown.String())
}
