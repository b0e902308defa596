package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/oakenlabs/textgate/internal/config"
)

// redisTier implements the remote tier on go-redis.
type redisTier struct {
	client    *goredis.Client
	namespace string
	opTimeout time.Duration
}

// newRedisTier builds a client from the cache config. The connection is
// not probed here; the facade's health breaker owns reachability.
func newRedisTier(cfg config.CacheConfig) (*redisTier, error) {
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	opts.PoolSize = cfg.MaxConnections
	opts.DialTimeout = time.Duration(cfg.ConnectionTimeout) * time.Second
	opts.ReadTimeout = time.Duration(cfg.ConnectionTimeout) * time.Second
	opts.WriteTimeout = time.Duration(cfg.ConnectionTimeout) * time.Second
	if cfg.UseTLS && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &redisTier{
		client:    goredis.NewClient(opts),
		namespace: "textgate",
		opTimeout: time.Duration(cfg.ConnectionTimeout) * time.Second,
	}, nil
}

func (r *redisTier) prefixKey(key string) string {
	return r.namespace + ":" + key
}

// Get returns the stored blob, or (nil, nil) on miss.
func (r *redisTier) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	blob, err := r.client.Get(ctx, r.prefixKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return blob, nil
}

func (r *redisTier) Set(ctx context.Context, key string, blob []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	if err := r.client.Set(ctx, r.prefixKey(key), blob, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// DeletePattern removes keys matching the glob via SCAN, never KEYS,
// and returns the count removed.
func (r *redisTier) DeletePattern(ctx context.Context, pattern string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	removed := 0
	iter := r.client.Scan(ctx, 0, r.prefixKey(pattern), 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, fmt.Errorf("redis del: %w", err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	return removed, nil
}

func (r *redisTier) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *redisTier) Close() error {
	return r.client.Close()
}
