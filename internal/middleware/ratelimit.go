package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/victorgomez09/keygate/internal/respond"
)

// RateLimitConfig describes one route-scoped fixed-window budget.
type RateLimitConfig struct {
	Max     int           `yaml:"max"`
	Window  time.Duration `yaml:"window"`
	Message string        `yaml:"message"`
}

// CounterStore increments the counter for a key within the current fixed
// window and returns the post-increment count. The in-memory store is
// per-process; the Redis store gives a shared ceiling across replicas.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int, error)
}

type bucket struct {
	windowStart time.Time
	count       int
}

// MemoryCounters is the default CounterStore: fixed-window counters held in
// process memory under a mutex. Counters are ephemeral and vanish on
// restart, which is acceptable for short windows.
type MemoryCounters struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{buckets: make(map[string]*bucket)}
}

func (m *MemoryCounters) Incr(_ context.Context, key string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	b, ok := m.buckets[key]
	if !ok || now.Sub(b.windowStart) >= window {
		m.buckets[key] = &bucket{windowStart: now, count: 1}
		return 1, nil
	}

	b.count++
	return b.count, nil
}

// RateLimiter enforces a fixed-window budget for one route. Instances are
// constructed once at startup, registered by name and reused across
// requests; a fresh limiter per request would never reject anything.
type RateLimiter struct {
	name     string
	config   RateLimitConfig
	counters CounterStore
	logger   *zap.Logger
}

func NewRateLimiter(name string, config RateLimitConfig, counters CounterStore, logger *zap.Logger) *RateLimiter {
	if config.Max <= 0 {
		config.Max = 60
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.Message == "" {
		config.Message = "too many requests"
	}

	return &RateLimiter{
		name:     name,
		config:   config,
		counters: counters,
		logger:   logger,
	}
}

// Middleware rejects the (Max+1)th request from the same client key within
// one window with 429. The counter store fault posture is fail closed: if
// the shared store cannot be reached the request is refused, unlike the
// blocklist stage which fails open.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.name + ":" + ClientIP(r)

		count, err := l.counters.Incr(r.Context(), key, l.config.Window)
		if err != nil {
			l.logger.Error("Rate limit counter store unavailable",
				zap.String("limiter", l.name),
				zap.Error(err))
			respond.Error(w, http.StatusInternalServerError, "internal server error")
			return
		}

		if count > l.config.Max {
			l.logger.Warn("Rate limit exceeded",
				zap.String("limiter", l.name),
				zap.String("ip", ClientIP(r)),
				zap.Int("count", count))
			respond.Error(w, http.StatusTooManyRequests, l.config.Message)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Registry owns the named limiter instances for the process. It is built
// once in main and injected into the gateway; there is no package-level
// limiter state.
type Registry struct {
	limiters map[string]*RateLimiter
}

func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*RateLimiter)}
}

func (r *Registry) Add(limiter *RateLimiter) {
	r.limiters[limiter.name] = limiter
}

func (r *Registry) Get(name string) *RateLimiter {
	return r.limiters[name]
}
