package middleware

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/victorgomez09/keygate/internal/respond"
)

// Throttle is a coarse per-client token bucket applied in front of the
// whole API to absorb burst floods before the route-scoped fixed-window
// limiters run. It carries no routing semantics of its own.
type Throttle struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

func NewThrottle(requestsPerSecond float64, burst int) *Throttle {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 50
	}
	if burst <= 0 {
		burst = 100
	}

	return &Throttle{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (t *Throttle) allow(key string) bool {
	t.mu.Lock()
	limiter, exists := t.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(t.rate, t.burst)
		t.limiters[key] = limiter
	}
	t.mu.Unlock()

	return limiter.Allow()
}

func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.allow(ClientIP(r)) {
			respond.Error(w, http.StatusTooManyRequests, "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}
