package middleware

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Logging emits one structured line per request with method, path, status,
// latency and caller address.
type Logging struct {
	logger       *zap.Logger
	excludePaths []string
}

type LoggingOption func(*Logging)

// WithExcludePaths excludes matching path prefixes from logging.
func WithExcludePaths(paths []string) LoggingOption {
	return func(l *Logging) {
		l.excludePaths = paths
	}
}

func NewLogging(logger *zap.Logger, opts ...LoggingOption) *Logging {
	lm := &Logging{
		logger: logger,
	}

	for _, opt := range opts {
		opt(lm)
	}

	return lm
}

func (l *Logging) shouldExcludePath(path string) bool {
	for _, excludePath := range l.excludePaths {
		if strings.HasPrefix(path, excludePath) {
			return true
		}
	}
	return false
}

func (l *Logging) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.shouldExcludePath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		sw := newStatusWriter(w)
		next.ServeHTTP(sw, r)
		duration := time.Since(start)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", duration),
			zap.String("ip", ClientIP(r)),
			zap.String("user_agent", r.UserAgent()),
			zap.Int("response_size", sw.length),
		}

		switch {
		case sw.status >= 500:
			l.logger.Error("Server error", fields...)
		case sw.status >= 400:
			l.logger.Warn("Client error", fields...)
		default:
			l.logger.Info("Request completed", fields...)
		}
	})
}
