package resilience

import (
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed allows calls through normally.
	StateClosed State = iota
	// StateOpen short-circuits calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits a single probe at a time.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker is one operation's circuit breaker. Lock hold times are
// short; work never runs under the lock.
type breaker struct {
	mu       sync.Mutex
	strategy Strategy

	state             State
	failures          int
	halfOpenSuccesses int
	probeInFlight     bool
	openedAt          time.Time

	now          func() time.Time
	onTransition func(from, to State)
}

func newBreaker(strategy Strategy, onTransition func(from, to State)) *breaker {
	if onTransition == nil {
		onTransition = func(State, State) {}
	}
	return &breaker{
		strategy:     strategy,
		now:          time.Now,
		onTransition: onTransition,
	}
}

// Allow reports whether a call may proceed. An open breaker whose
// cooldown has elapsed transitions to half-open and admits the caller
// as the probe; in half-open, at most one probe is in flight.
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true

	case StateOpen:
		if b.now().Sub(b.openedAt) < b.strategy.Cooldown {
			return false
		}
		b.transitionTo(StateHalfOpen)
		b.halfOpenSuccesses = 0
		b.probeInFlight = true
		return true

	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true

	default:
		return false
	}
}

// RecordSuccess notes a successful call.
func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.probeInFlight = false
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.strategy.HalfOpenRequiredSuccesses {
			b.transitionTo(StateClosed)
			b.failures = 0
			b.halfOpenSuccesses = 0
		}
	}
}

// RecordFailure notes a terminal call failure. Caller cancellations
// must not be recorded.
func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.strategy.FailureThreshold {
			b.transitionTo(StateOpen)
			b.openedAt = b.now()
		}
	case StateHalfOpen:
		b.probeInFlight = false
		b.halfOpenSuccesses = 0
		b.transitionTo(StateOpen)
		b.openedAt = b.now()
	}
}

// State returns the current state.
func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *breaker) transitionTo(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.onTransition(prev, next)
}
