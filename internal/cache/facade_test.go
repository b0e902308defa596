package cache

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakenlabs/textgate/internal/config"
	"github.com/oakenlabs/textgate/internal/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LoggerConfig{
		Level:      slog.LevelError,
		Output:     io.Discard,
		JSONFormat: true,
	}, observability.NewRedactor())
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		DefaultTTL:        60,
		MemoryCacheSize:   100,
		MaxConnections:    5,
		ConnectionTimeout: 2,
	}
}

func newTestFacade(t *testing.T, cfg config.CacheConfig, mr *miniredis.Miniredis) *Facade {
	t.Helper()
	var remote remoteTier
	if mr != nil {
		cfg.RedisURL = "redis://" + mr.Addr()
		tier, err := newRedisTier(cfg)
		require.NoError(t, err)
		remote = tier
	}
	f, err := newFacade(cfg, remote, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestFacadeL1RoundTrip(t *testing.T) {
	f := newTestFacade(t, testCacheConfig(), nil)
	ctx := context.Background()

	payload := []byte(`{"result":"cached"}`)
	f.Set(ctx, "v1|summarize|t||", payload, time.Minute)

	got, ok := f.Get(ctx, "v1|summarize|t||")
	require.True(t, ok)
	assert.Equal(t, payload, got)

	s := f.Stats()
	assert.Equal(t, int64(1), s.HitsL1)
	assert.Equal(t, int64(1), s.Sets)
	assert.Equal(t, 1, s.L1Size)
}

func TestFacadeMissCounts(t *testing.T) {
	f := newTestFacade(t, testCacheConfig(), nil)

	_, ok := f.Get(context.Background(), "absent")
	assert.False(t, ok)
	assert.Equal(t, int64(1), f.Stats().Misses)
}

func TestFacadeTTLExpiry(t *testing.T) {
	f := newTestFacade(t, testCacheConfig(), nil)
	ctx := context.Background()

	clock := time.Unix(1000, 0)
	f.l1.now = func() time.Time { return clock }

	f.Set(ctx, "x", []byte(`"v"`), time.Second)
	clock = clock.Add(1100 * time.Millisecond)

	_, ok := f.Get(ctx, "x")
	assert.False(t, ok)
	assert.Equal(t, int64(1), f.Stats().EvictionsTTL)
}

func TestFacadeRemoteBackfill(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	writer := newTestFacade(t, testCacheConfig(), mr)
	payload := []byte(`{"result":"shared"}`)
	writer.Set(ctx, "k", payload, time.Minute)

	// A fresh facade has a cold L1 and must fall through to Redis.
	reader := newTestFacade(t, testCacheConfig(), mr)
	got, ok := reader.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, payload, got)
	assert.Equal(t, int64(1), reader.Stats().HitsRemote)

	// The hit was promoted: the next read is served by L1.
	_, ok = reader.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, int64(1), reader.Stats().HitsL1)
}

func TestFacadePromotionThreshold(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cfg := testCacheConfig()
	cfg.PromotionThreshold = 1 << 20 // nothing qualifies

	writer := newTestFacade(t, testCacheConfig(), mr)
	writer.Set(ctx, "k", []byte(`"small"`), time.Minute)

	reader := newTestFacade(t, cfg, mr)
	_, ok := reader.Get(ctx, "k")
	require.True(t, ok)
	_, ok = reader.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, int64(2), reader.Stats().HitsRemote, "small entries stay remote-only")
	assert.Equal(t, int64(0), reader.Stats().HitsL1)
}

func TestFacadeEncryptionAtRest(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cfg := testCacheConfig()
	cfg.EncryptionKey = testFernetKey
	f := newTestFacade(t, cfg, mr)

	secret := `{"result":"sixteen-byte-secret-value"}`
	f.Set(ctx, "k", []byte(secret), time.Minute)

	raw, err := mr.Get("textgate:k")
	require.NoError(t, err)
	assert.NotContains(t, raw, "sixteen-byte-secret-value")

	got, ok := f.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, secret, string(got))
}

func TestFacadeDecryptFailureIsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cfg := testCacheConfig()
	cfg.EncryptionKey = testFernetKey
	f := newTestFacade(t, cfg, mr)

	f.Set(ctx, "k", []byte(`"v"`), time.Minute)
	blob, err := mr.Get("textgate:k")
	require.NoError(t, err)
	tampered := []byte(blob)
	tampered[len(tampered)-1] ^= 0xff
	mr.Set("textgate:k", string(tampered))

	// L1 still holds the clean copy; clear it to hit the remote path.
	f.l1.DeletePattern("*")

	_, ok := f.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, int64(1), f.Stats().DecryptionFailures)
}

func TestFacadeDegradesWhenRemoteDies(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	f := newTestFacade(t, testCacheConfig(), mr)
	f.Set(ctx, "k", []byte(`"v"`), time.Minute)
	mr.Close()

	// L1 keeps serving.
	got, ok := f.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, `"v"`, string(got))

	// A remote-path failure opens the gate.
	_, ok = f.Get(ctx, "missing")
	assert.False(t, ok)
	assert.Equal(t, int64(1), f.Stats().RemoteErrors)

	// Inside the cooldown the remote is not probed again.
	_, _ = f.Get(ctx, "missing2")
	assert.Equal(t, int64(1), f.Stats().RemoteErrors)
	assert.False(t, f.RemoteOK(ctx))

	// Sets degrade to L1-only without error.
	f.Set(ctx, "k2", []byte(`"w"`), time.Minute)
	_, ok = f.Get(ctx, "k2")
	assert.True(t, ok)
}

func TestFacadeInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	f := newTestFacade(t, testCacheConfig(), mr)
	f.Set(ctx, "v1|summarize|a||", []byte(`"1"`), time.Minute)
	f.Set(ctx, "v1|summarize|b||", []byte(`"2"`), time.Minute)
	f.Set(ctx, "v1|qa|a||q", []byte(`"3"`), time.Minute)

	removed := f.Invalidate(ctx, "v1|summarize|*")
	assert.Equal(t, 4, removed, "two L1 entries plus two remote entries")

	_, ok := f.Get(ctx, "v1|summarize|a||")
	assert.False(t, ok)
	_, ok = f.Get(ctx, "v1|qa|a||q")
	assert.True(t, ok)
}

func TestFacadeSingleFlight(t *testing.T) {
	f := newTestFacade(t, testCacheConfig(), nil)
	ctx := context.Background()

	var calls atomic.Int64
	producer := func(context.Context) ([]byte, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return []byte("42"), nil
	}

	const n = 10
	results := make([][]byte, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			v, err := f.GetOrCompute(ctx, "k", time.Minute, producer)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "producer must run exactly once")
	for i := 0; i < n; i++ {
		assert.Equal(t, "42", string(results[i]))
	}
	assert.Equal(t, int64(1), f.Stats().Misses)

	// The value was cached: another call never reaches the producer.
	v, err := f.GetOrCompute(ctx, "k", time.Minute, producer)
	require.NoError(t, err)
	assert.Equal(t, "42", string(v))
	assert.Equal(t, int64(1), calls.Load())
}

func TestFacadeGetOrComputeError(t *testing.T) {
	f := newTestFacade(t, testCacheConfig(), nil)
	ctx := context.Background()

	wantErr := assert.AnError
	_, err := f.GetOrCompute(ctx, "k", time.Minute, func(context.Context) ([]byte, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)

	// Nothing was cached.
	_, ok := f.Get(ctx, "k")
	assert.False(t, ok)
}

func TestFacadeCompressionCounted(t *testing.T) {
	cfg := testCacheConfig()
	cfg.CompressionLevel = 6
	cfg.CompressionThreshold = 64
	f := newTestFacade(t, cfg, nil)
	ctx := context.Background()

	big := []byte(`{"result":"` + strings.Repeat("abc ", 100) + `"}`)
	f.Set(ctx, "k", big, time.Minute)
	assert.Equal(t, int64(1), f.Stats().Compressions)

	got, ok := f.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, big, got)
}
