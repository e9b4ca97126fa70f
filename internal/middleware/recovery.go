package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/victorgomez09/keygate/internal/respond"
)

// Recovery is the outermost boundary of the pipeline. Panics from any stage
// or handler are logged with full detail and surfaced to the caller as a
// generic 500; nothing internal leaks into the response body.
type Recovery struct {
	logger *zap.Logger
}

func NewRecovery(logger *zap.Logger) *Recovery {
	return &Recovery{logger: logger}
}

func (m *Recovery) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				m.logger.Error("Panic while handling request",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"))
				respond.Error(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
