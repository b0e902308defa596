package resilience

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakenlabs/textgate/internal/observability"
	"github.com/oakenlabs/textgate/pkg/errors"
)

const fallbackMessage = "Service temporarily unavailable; please retry shortly."

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	log := observability.NewLogger(observability.LoggerConfig{
		Level:      slog.LevelError,
		Output:     io.Discard,
		JSONFormat: true,
	}, observability.NewRedactor())
	o := NewOrchestrator(log)
	o.sleep = func(context.Context, time.Duration) error { return nil }
	o.randF = func() float64 { return 0.5 }
	return o
}

func stringFallback() (string, error) { return fallbackMessage, nil }

func TestExecuteSuccess(t *testing.T) {
	o := newTestOrchestrator(t)
	o.Register("summarize", strategies["balanced"])

	result, outcome, err := o.Execute(context.Background(), "summarize",
		func(context.Context) (string, error) { return "summary", nil }, stringFallback)

	require.NoError(t, err)
	assert.Equal(t, "summary", result)
	assert.False(t, outcome.Degraded)
	assert.Equal(t, 1, outcome.Attempts)
}

func TestExecuteRetriesTransient(t *testing.T) {
	o := newTestOrchestrator(t)
	o.Register("summarize", strategies["balanced"])

	var calls atomic.Int64
	result, outcome, err := o.Execute(context.Background(), "summarize",
		func(context.Context) (string, error) {
			if calls.Add(1) < 3 {
				return "", errors.NewTransientAI("upstream 503")
			}
			return "recovered", nil
		}, stringFallback)

	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 3, outcome.Attempts)
	assert.False(t, outcome.Degraded)
}

func TestExecutePermanentNoRetryNoFallback(t *testing.T) {
	o := newTestOrchestrator(t)
	o.Register("summarize", strategies["balanced"])

	var calls atomic.Int64
	_, _, err := o.Execute(context.Background(), "summarize",
		func(context.Context) (string, error) {
			calls.Add(1)
			return "", errors.NewPermanentAI("provider rejected the request")
		}, stringFallback)

	require.Error(t, err)
	assert.Equal(t, errors.KindPermanentAI, errors.KindOf(err))
	assert.Equal(t, int64(1), calls.Load(), "permanent failures must not retry")
}

func TestExecuteExhaustionServesFallback(t *testing.T) {
	o := newTestOrchestrator(t)
	o.Register("summarize", strategies["balanced"])

	result, outcome, err := o.Execute(context.Background(), "summarize",
		func(context.Context) (string, error) {
			return "", errors.NewTransientAI("upstream 503")
		}, stringFallback)

	require.NoError(t, err)
	assert.Equal(t, fallbackMessage, result)
	assert.True(t, outcome.Degraded)
	assert.Equal(t, 3, outcome.Attempts)
}

func TestExecuteExhaustionWithoutFallbackSurfaces(t *testing.T) {
	o := newTestOrchestrator(t)
	o.Register("summarize", strategies["balanced"])

	_, _, err := o.Execute(context.Background(), "summarize",
		func(context.Context) (string, error) {
			return "", errors.NewTransientAI("upstream 503")
		}, nil)

	require.Error(t, err)
	assert.Equal(t, errors.KindTransientAI, errors.KindOf(err))
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	o := newTestOrchestrator(t)
	o.Register("summarize", strategies["balanced"])

	var workCalls atomic.Int64
	failing := func(context.Context) (string, error) {
		workCalls.Add(1)
		return "", errors.NewTransientAI("upstream 503")
	}

	// Five executions, each exhausting its attempts, cross the
	// failure threshold.
	for i := 0; i < 5; i++ {
		result, outcome, err := o.Execute(context.Background(), "summarize", failing, stringFallback)
		require.NoError(t, err)
		assert.True(t, outcome.Degraded)
		assert.Equal(t, fallbackMessage, result)
	}
	require.Equal(t, int64(15), workCalls.Load())

	state, ok := o.State("summarize")
	require.True(t, ok)
	require.Equal(t, StateOpen, state)
	assert.Equal(t, []string{"summarize"}, o.OpenBreakers())

	// Within the cooldown the work function is never invoked.
	result, outcome, err := o.Execute(context.Background(), "summarize", failing, stringFallback)
	require.NoError(t, err)
	assert.True(t, outcome.Degraded)
	assert.Equal(t, fallbackMessage, result)
	assert.Equal(t, int64(15), workCalls.Load())
}

func TestCancellationSkipsFallbackAndBreaker(t *testing.T) {
	o := newTestOrchestrator(t)
	o.Register("summarize", strategies["balanced"])

	ctx, cancel := context.WithCancel(context.Background())
	_, _, err := o.Execute(ctx, "summarize",
		func(c context.Context) (string, error) {
			cancel()
			return "", c.Err()
		}, stringFallback)

	require.Error(t, err)
	assert.Equal(t, errors.KindPermanentAI, errors.KindOf(err))

	state, ok := o.State("summarize")
	require.True(t, ok)
	assert.Equal(t, StateClosed, state, "cancellation must not count against the breaker")
}

func TestAttemptTimeoutIsTransient(t *testing.T) {
	o := newTestOrchestrator(t)
	s := strategies["aggressive"]
	s.Timeout = 10 * time.Millisecond
	o.Register("summarize", s)

	var calls atomic.Int64
	result, outcome, err := o.Execute(context.Background(), "summarize",
		func(c context.Context) (string, error) {
			calls.Add(1)
			<-c.Done()
			return "", c.Err()
		}, stringFallback)

	require.NoError(t, err)
	assert.Equal(t, fallbackMessage, result)
	assert.True(t, outcome.Degraded)
	assert.Equal(t, int64(2), calls.Load(), "timeouts retry up to the attempt budget")
}

func TestRetryAfterHonoredUpToCap(t *testing.T) {
	o := newTestOrchestrator(t)
	o.Register("summarize", strategies["balanced"])

	var delays []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, _, err := o.Execute(context.Background(), "summarize",
		func(context.Context) (string, error) {
			return "", errors.NewRateLimit("slow down", 10*time.Second)
		}, nil)
	require.Error(t, err)

	require.Len(t, delays, 2)
	for _, d := range delays {
		assert.Equal(t, 4*time.Second, d, "retry-after is capped at max backoff")
	}
}

func TestExecuteUnregisteredOperation(t *testing.T) {
	o := newTestOrchestrator(t)
	_, _, err := o.Execute(context.Background(), "ghost",
		func(context.Context) (string, error) { return "x", nil }, nil)

	require.Error(t, err)
	assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))
}

func TestRegisterIsIdempotent(t *testing.T) {
	o := newTestOrchestrator(t)
	o.Register("summarize", strategies["balanced"])

	for i := 0; i < 5; i++ {
		_, _, _ = o.Execute(context.Background(), "summarize",
			func(context.Context) (string, error) {
				return "", errors.NewTransientAI("boom")
			}, nil)
	}
	state, _ := o.State("summarize")
	require.Equal(t, StateOpen, state)

	// Re-registering keeps the open breaker.
	o.Register("summarize", strategies["balanced"])
	state, _ = o.State("summarize")
	assert.Equal(t, StateOpen, state)
}

func TestConcurrentExecutions(t *testing.T) {
	o := newTestOrchestrator(t)
	o.Register("summarize", strategies["balanced"])

	var wg sync.WaitGroup
	var successes atomic.Int64
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, _, err := o.Execute(context.Background(), "summarize",
				func(context.Context) (string, error) { return "ok", nil }, nil)
			if err == nil && result == "ok" {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(20), successes.Load())
}
