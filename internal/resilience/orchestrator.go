package resilience

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/oakenlabs/textgate/internal/metrics"
	"github.com/oakenlabs/textgate/internal/observability"
	"github.com/oakenlabs/textgate/pkg/errors"
)

// Outcome describes how an execution concluded.
type Outcome struct {
	Degraded bool
	Attempts int
	Duration time.Duration
}

type operationState struct {
	strategy Strategy
	breaker  *breaker
}

// Orchestrator runs work functions under per-operation circuit
// breakers and retry policies. Operations are registered at startup;
// the breaker map is append-only afterwards. The breaker is not a
// semaphore: any number of concurrent executions per operation is
// allowed while the circuit is closed.
type Orchestrator struct {
	mu  sync.RWMutex
	ops map[string]*operationState
	log *observability.Logger

	sleep func(ctx context.Context, d time.Duration) error
	randF func() float64
}

// NewOrchestrator creates an empty orchestrator.
func NewOrchestrator(log *observability.Logger) *Orchestrator {
	return &Orchestrator{
		ops: make(map[string]*operationState),
		log: log,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-time.After(d):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		randF: rand.Float64,
	}
}

// Register binds an operation to a strategy. Idempotent; a second call
// for the same operation keeps the existing breaker state.
func (o *Orchestrator) Register(opID string, strategy Strategy) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.ops[opID]; ok {
		return
	}
	o.ops[opID] = &operationState{
		strategy: strategy,
		breaker: newBreaker(strategy, func(from, to State) {
			metrics.BreakerTransitions.WithLabelValues(opID, from.String(), to.String()).Inc()
			metrics.BreakerState.WithLabelValues(opID).Set(float64(to))
			o.log.RedactedWarn("circuit breaker transition",
				"operation", opID, "from", from.String(), "to", to.String())
		}),
	}
}

// OpenBreakers returns the operations whose breakers are not closed.
func (o *Orchestrator) OpenBreakers() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var open []string
	for opID, st := range o.ops {
		if st.breaker.State() != StateClosed {
			open = append(open, opID)
		}
	}
	return open
}

// Execute runs work under the operation's strategy. Transient failures
// are retried with full-jitter backoff; a provider-supplied retry-after
// is honored up to the strategy's backoff cap. When the breaker is open
// or attempts are exhausted on a transient error, fallback (if any) is
// served as a degraded result. Permanent failures and caller
// cancellation surface immediately; cancellation records nothing
// against the breaker.
func (o *Orchestrator) Execute(ctx context.Context, opID string, work func(context.Context) (string, error), fallback func() (string, error)) (string, Outcome, error) {
	o.mu.RLock()
	st, ok := o.ops[opID]
	o.mu.RUnlock()
	if !ok {
		return "", Outcome{}, errors.NewConfiguration("operation not registered").WithOperation(opID)
	}

	start := time.Now()
	if !st.breaker.Allow() {
		return o.degrade(opID, fallback, start, 0,
			errors.NewTransientAI("circuit open").WithOperation(opID))
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= st.strategy.MaxAttempts; attempt++ {
		attempts = attempt
		metrics.ResilienceAttempts.WithLabelValues(opID).Inc()

		result, err := o.runAttempt(ctx, st.strategy, work)
		if err == nil {
			st.breaker.RecordSuccess()
			metrics.ResilienceSuccesses.WithLabelValues(opID).Inc()
			metrics.OperationDuration.WithLabelValues(opID, "success").Observe(time.Since(start).Seconds())
			return result, Outcome{Attempts: attempts, Duration: time.Since(start)}, nil
		}
		lastErr = err

		// Caller cancellation: surface without breaker accounting or
		// fallback.
		if ctx.Err() != nil {
			metrics.OperationDuration.WithLabelValues(opID, "error").Observe(time.Since(start).Seconds())
			return "", Outcome{Attempts: attempts, Duration: time.Since(start)},
				errors.NewPermanentAI("request canceled").WithOperation(opID).WithCause(ctx.Err())
		}

		if !errors.IsRetryable(err) {
			st.breaker.RecordFailure()
			metrics.ResilienceFailures.WithLabelValues(opID, string(errors.KindOf(err))).Inc()
			metrics.OperationDuration.WithLabelValues(opID, "error").Observe(time.Since(start).Seconds())
			return "", Outcome{Attempts: attempts, Duration: time.Since(start)}, err
		}

		if attempt < st.strategy.MaxAttempts {
			if serr := o.sleep(ctx, o.backoffDelay(st.strategy, attempt, err)); serr != nil {
				metrics.OperationDuration.WithLabelValues(opID, "error").Observe(time.Since(start).Seconds())
				return "", Outcome{Attempts: attempts, Duration: time.Since(start)},
					errors.NewPermanentAI("request canceled").WithOperation(opID).WithCause(serr)
			}
		}
	}

	// Transient failures exhausted the attempt budget.
	st.breaker.RecordFailure()
	metrics.ResilienceFailures.WithLabelValues(opID, string(errors.KindOf(lastErr))).Inc()
	return o.degrade(opID, fallback, start, attempts, lastErr)
}

// State returns the breaker state for one operation.
func (o *Orchestrator) State(opID string) (State, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st, ok := o.ops[opID]
	if !ok {
		return StateClosed, false
	}
	return st.breaker.State(), true
}

func (o *Orchestrator) runAttempt(ctx context.Context, s Strategy, work func(context.Context) (string, error)) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	result, err := work(attemptCtx)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return "", errors.NewTransientAI("attempt timed out").WithCause(err)
	}
	return result, err
}

// backoffDelay computes the sleep before the next attempt: full jitter
// over the exponential cap, or the provider-suggested retry-after when
// larger, capped at the strategy maximum.
func (o *Orchestrator) backoffDelay(s Strategy, attempt int, err error) time.Duration {
	delay := time.Duration(o.randF() * float64(s.backoffFor(attempt)))
	if ra := errors.RetryAfterOf(err); ra > delay {
		delay = ra
		if delay > s.MaxBackoff {
			delay = s.MaxBackoff
		}
	}
	return delay
}

func (o *Orchestrator) degrade(opID string, fallback func() (string, error), start time.Time, attempts int, cause error) (string, Outcome, error) {
	if fallback == nil {
		metrics.OperationDuration.WithLabelValues(opID, "error").Observe(time.Since(start).Seconds())
		return "", Outcome{Attempts: attempts, Duration: time.Since(start)}, cause
	}
	value, err := fallback()
	if err != nil {
		metrics.OperationDuration.WithLabelValues(opID, "error").Observe(time.Since(start).Seconds())
		return "", Outcome{Attempts: attempts, Duration: time.Since(start)}, cause
	}
	metrics.ResilienceFallbacks.WithLabelValues(opID).Inc()
	metrics.OperationDuration.WithLabelValues(opID, "fallback").Observe(time.Since(start).Seconds())
	o.log.RedactedWarn("serving fallback", "operation", opID, "cause", cause)
	return value, Outcome{Degraded: true, Attempts: attempts, Duration: time.Since(start)}, nil
}
