package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/victorgomez09/keygate/internal/auth"
	"github.com/victorgomez09/keygate/internal/models"
	"github.com/victorgomez09/keygate/internal/respond"
)

type contextKey int

const subjectKey contextKey = iota

// SubjectFromContext returns the authenticated subject attached by the
// Authenticator, if any.
func SubjectFromContext(ctx context.Context) (*models.Subject, bool) {
	subject, ok := ctx.Value(subjectKey).(*models.Subject)
	return subject, ok
}

// TokenValidator verifies a bearer credential and resolves the subject
// behind it, plus the subject's persisted role.
type TokenValidator interface {
	ValidateToken(tokenString string) (*models.Subject, error)
	Role(userID int64) (models.Role, error)
}

// Authenticator is the signed-token strategy of the role gate. It extracts
// the bearer credential, verifies it, and attaches the resolved subject to
// the request context for downstream stages.
type Authenticator struct {
	validator TokenValidator
	logger    *zap.Logger
}

func NewAuthenticator(validator TokenValidator, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		validator: validator,
		logger:    logger,
	}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respond.Error(w, http.StatusUnauthorized, auth.ErrMissingToken.Error())
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			respond.Error(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		subject, err := a.validator.ValidateToken(tokenParts[1])
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrRevokedToken):
				respond.Error(w, http.StatusUnauthorized, auth.ErrRevokedToken.Error())
			case errors.Is(err, auth.ErrInvalidToken):
				respond.Error(w, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
			default:
				a.logger.Error("Token verifier fault", zap.Error(err))
				respond.Error(w, http.StatusInternalServerError, "internal server error")
			}
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole enforces role membership after authentication. The role is
// re-read from the store rather than trusted from the token, so a demoted
// subject loses access as soon as the record changes.
func (a *Authenticator) RequireRole(required models.Role) Middleware {
	return Func(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := SubjectFromContext(r.Context())
			if !ok {
				respond.Error(w, http.StatusUnauthorized, auth.ErrMissingToken.Error())
				return
			}

			role, err := a.validator.Role(subject.ID)
			if err != nil {
				if errors.Is(err, auth.ErrUserNotFound) {
					respond.Error(w, http.StatusForbidden, auth.ErrForbidden.Error())
					return
				}
				a.logger.Error("Role lookup fault", zap.Error(err))
				respond.Error(w, http.StatusInternalServerError, "internal server error")
				return
			}

			if !role.Satisfies(required) {
				a.logger.Info("Role check failed",
					zap.Int64("subject", subject.ID),
					zap.String("have", string(role)),
					zap.String("want", string(required)))
				respond.Error(w, http.StatusForbidden, auth.ErrForbidden.Error())
				return
			}

			// Persisted role wins over the token claim.
			subject.Role = role
			next.ServeHTTP(w, r)
		})
	})
}
