package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/victorgomez09/keygate/internal/respond"
)

// BlockChecker is the decision surface the blocklist stage needs.
type BlockChecker interface {
	IsBlocked(ip string) (bool, error)
}

// Blocklist rejects requests from denylisted addresses before any
// authentication runs, so a blocked caller gets 403 even with a valid
// token.
//
// Failure posture: when the underlying store cannot answer, the request is
// allowed through to the later stages. Every other stage in the pipeline
// fails closed; this one fails open.
type Blocklist struct {
	checker BlockChecker
	logger  *zap.Logger
}

func NewBlocklist(checker BlockChecker, logger *zap.Logger) *Blocklist {
	return &Blocklist{
		checker: checker,
		logger:  logger,
	}
}

func (b *Blocklist) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)

		blocked, err := b.checker.IsBlocked(ip)
		if err != nil {
			b.logger.Warn("Blocklist check failed, allowing request",
				zap.String("ip", ip),
				zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		if blocked {
			b.logger.Info("Request from blocked IP rejected", zap.String("ip", ip))
			respond.Error(w, http.StatusForbidden, "access denied")
			return
		}

		next.ServeHTTP(w, r)
	})
}
