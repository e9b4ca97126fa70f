package middleware

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"

	"github.com/victorgomez09/keygate/internal/respond"
)

// SharedSecret is the second authenticator strategy: a named header
// compared against a configured secret. It carries no per-user subject and
// is meant for service-to-service callers such as the abuse reporter.
type SharedSecret struct {
	header string
	secret []byte
	logger *zap.Logger
}

func NewSharedSecret(header, secret string, logger *zap.Logger) *SharedSecret {
	return &SharedSecret{
		header: header,
		secret: []byte(secret),
		logger: logger,
	}
}

// Middleware rejects any request whose header value is not byte-for-byte
// equal to the configured secret. The comparison is constant time so the
// rejection latency does not leak how much of the secret matched; an
// empty or missing header fails the same way.
func (s *SharedSecret) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.secret) == 0 {
			s.logger.Warn("Shared secret not configured, refusing request")
			respond.Error(w, http.StatusForbidden, "forbidden")
			return
		}

		presented := []byte(r.Header.Get(s.header))
		if subtle.ConstantTimeCompare(presented, s.secret) != 1 {
			s.logger.Info("Shared secret mismatch", zap.String("ip", ClientIP(r)))
			respond.Error(w, http.StatusForbidden, "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}
