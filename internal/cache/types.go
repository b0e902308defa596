// Package cache implements the two-tier response cache: an in-memory
// LRU tier backed by an optional Redis tier, with zlib compression and
// Fernet encryption applied at the codec layer.
package cache

import (
	"context"
	"sync/atomic"
	"time"
)

// remoteTier is the contract the facade needs from the remote store.
// A nil remoteTier means L1-only operation.
type remoteTier interface {
	// Get returns the stored blob, or (nil, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, blob []byte, ttl time.Duration) error
	// DeletePattern removes keys matching a glob and returns the count.
	DeletePattern(ctx context.Context, pattern string) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	HitsL1             int64 `json:"hits_l1"`
	HitsRemote         int64 `json:"hits_remote"`
	Misses             int64 `json:"misses"`
	Sets               int64 `json:"sets"`
	EvictionsLRU       int64 `json:"evictions_lru"`
	EvictionsTTL       int64 `json:"evictions_ttl"`
	Compressions       int64 `json:"compressions"`
	DecryptionFailures int64 `json:"decryption_failures"`
	RemoteErrors       int64 `json:"remote_errors"`
	InFlight           int64 `json:"in_flight"`
	BytesStored        int64 `json:"bytes_stored"`
	L1Size             int   `json:"l1_size"`
}

// counters holds the facade's atomic counters.
type counters struct {
	hitsL1             atomic.Int64
	hitsRemote         atomic.Int64
	misses             atomic.Int64
	sets               atomic.Int64
	evictionsLRU       atomic.Int64
	evictionsTTL       atomic.Int64
	compressions       atomic.Int64
	decryptionFailures atomic.Int64
	remoteErrors       atomic.Int64
	inFlight           atomic.Int64
	bytesStored        atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		HitsL1:             c.hitsL1.Load(),
		HitsRemote:         c.hitsRemote.Load(),
		Misses:             c.misses.Load(),
		Sets:               c.sets.Load(),
		EvictionsLRU:       c.evictionsLRU.Load(),
		EvictionsTTL:       c.evictionsTTL.Load(),
		Compressions:       c.compressions.Load(),
		DecryptionFailures: c.decryptionFailures.Load(),
		RemoteErrors:       c.remoteErrors.Load(),
		InFlight:           c.inFlight.Load(),
		BytesStored:        c.bytesStored.Load(),
	}
}
