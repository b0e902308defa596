package config

import (
	"sync"
	"time"
)

// SlidingWindowLimiter enforces per-client caps over trailing one
// minute and one hour windows, plus a fixed cooldown between calls.
// Token buckets cannot answer "how many accepted calls in the trailing
// window", which the usage report requires, so acceptance timestamps
// are retained per client.
type SlidingWindowLimiter struct {
	perMinute int
	perHour   int
	cooldown  time.Duration

	mu      sync.Mutex
	clients map[string]*clientWindow
	now     func() time.Time
}

type clientWindow struct {
	accepted []time.Time // ascending, pruned to the trailing hour
	lastCall time.Time
}

// Usage is a snapshot of one client's accepted-call counts.
type Usage struct {
	RequestsLastMinute int `json:"requests_last_minute"`
	RequestsLastHour   int `json:"requests_last_hour"`
}

// NewSlidingWindowLimiter creates a limiter. Non-positive arguments
// fall back to the defaults (60/min, 1000/h, 1 s cooldown).
func NewSlidingWindowLimiter(perMinute, perHour int, cooldown time.Duration) *SlidingWindowLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if perHour <= 0 {
		perHour = 1000
	}
	if cooldown <= 0 {
		cooldown = time.Second
	}
	return &SlidingWindowLimiter{
		perMinute: perMinute,
		perHour:   perHour,
		cooldown:  cooldown,
		clients:   make(map[string]*clientWindow),
		now:       time.Now,
	}
}

// Allow records an attempt for clientID. It returns whether the call is
// accepted and, when rejected, the suggested wait before retrying.
func (l *SlidingWindowLimiter) Allow(clientID string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cw := l.clients[clientID]
	if cw == nil {
		cw = &clientWindow{}
		l.clients[clientID] = cw
	}
	cw.prune(now)

	if !cw.lastCall.IsZero() {
		if elapsed := now.Sub(cw.lastCall); elapsed < l.cooldown {
			cw.lastCall = now
			return false, l.cooldown - elapsed
		}
	}
	cw.lastCall = now

	if n := cw.countSince(now.Add(-time.Minute)); n >= l.perMinute {
		return false, cw.accepted[len(cw.accepted)-n].Add(time.Minute).Sub(now)
	}
	if len(cw.accepted) >= l.perHour {
		return false, cw.accepted[0].Add(time.Hour).Sub(now)
	}

	cw.accepted = append(cw.accepted, now)
	return true, 0
}

// Info returns the accepted-call counts for clientID.
func (l *SlidingWindowLimiter) Info(clientID string) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	cw := l.clients[clientID]
	if cw == nil {
		return Usage{}
	}
	now := l.now()
	cw.prune(now)
	return Usage{
		RequestsLastMinute: cw.countSince(now.Add(-time.Minute)),
		RequestsLastHour:   len(cw.accepted),
	}
}

func (w *clientWindow) prune(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for i < len(w.accepted) && !w.accepted[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.accepted = append(w.accepted[:0], w.accepted[i:]...)
	}
}

func (w *clientWindow) countSince(cutoff time.Time) int {
	n := 0
	for i := len(w.accepted) - 1; i >= 0; i-- {
		if !w.accepted[i].After(cutoff) {
			break
		}
		n++
	}
	return n
}
