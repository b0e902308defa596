package auth

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/oakenlabs/textgate/internal/metrics"
)

// TenantLimiter applies a per-identity token bucket in front of the
// processing endpoints. Idle tenants are dropped by a background sweep.
type TenantLimiter struct {
	mu      sync.Mutex
	tenants map[string]*tenantEntry

	rpm   int
	burst int
	stop  chan struct{}
}

type tenantEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTenantLimiter creates a limiter allowing rpm requests per minute
// per identity, with a burst of rpm/10 (minimum 1).
func NewTenantLimiter(rpm int) *TenantLimiter {
	if rpm <= 0 {
		rpm = 300
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	l := &TenantLimiter{
		tenants: make(map[string]*tenantEntry),
		rpm:     rpm,
		burst:   burst,
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether identity may proceed.
func (l *TenantLimiter) Allow(identity string) bool {
	l.mu.Lock()
	entry, ok := l.tenants[identity]
	if !ok {
		entry = &tenantEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(l.rpm)/60.0), l.burst),
		}
		l.tenants[identity] = entry
	}
	entry.lastSeen = time.Now()
	l.mu.Unlock()

	return entry.limiter.Allow()
}

// Close stops the cleanup loop.
func (l *TenantLimiter) Close() {
	close(l.stop)
}

func (l *TenantLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			l.mu.Lock()
			for id, entry := range l.tenants {
				if entry.lastSeen.Before(cutoff) {
					delete(l.tenants, id)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Middleware rejects over-limit tenants with 429 and a Retry-After
// hint. It must run after the auth middleware so the identity is set.
func (l *TenantLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFromContext(r.Context())
		if identity == "" {
			identity = r.RemoteAddr
		}
		if !l.Allow(identity) {
			metrics.RateLimitRejections.WithLabelValues("tenant").Inc()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(60/l.rpm+1))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success":       false,
				"error_code":    "rate_limit_error",
				"error_message": "tenant request rate exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
