package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/victorgomez09/keygate/internal/auth"
	"github.com/victorgomez09/keygate/internal/blocklist"
	"github.com/victorgomez09/keygate/internal/events"
	"github.com/victorgomez09/keygate/internal/license"
	"github.com/victorgomez09/keygate/internal/middleware"
	"github.com/victorgomez09/keygate/internal/models"
	"github.com/victorgomez09/keygate/internal/notify"
	"github.com/victorgomez09/keygate/internal/respond"
)

// GateAPI is the integration point of the gating pipeline: it owns the
// route table and composes the per-route middleware chains from the
// injected services. Nothing in here is package-level state; everything is
// constructed once in main and passed down.
type GateAPI struct {
	mux           *http.ServeMux
	licenses      *license.Service
	blocklist     *blocklist.Service
	auth          *auth.Service
	authenticator *middleware.Authenticator
	sharedSecret  *middleware.SharedSecret
	limits        *middleware.Registry
	blockStage    *middleware.Blocklist
	throttle      *middleware.Throttle
	bus           *events.Bus
	mailer        *notify.Mailer
	abuseTTL      time.Duration
	logger        *zap.Logger
}

// Deps carries everything the gateway needs, constructed by the caller.
type Deps struct {
	Licenses      *license.Service
	Blocklist     *blocklist.Service
	Auth          *auth.Service
	Authenticator *middleware.Authenticator
	SharedSecret  *middleware.SharedSecret
	Limits        *middleware.Registry
	BlockStage    *middleware.Blocklist
	Throttle      *middleware.Throttle
	Bus           *events.Bus
	Mailer        *notify.Mailer
	AbuseTTL      time.Duration
	Logger        *zap.Logger
}

func New(deps Deps) *GateAPI {
	api := &GateAPI{
		mux:           http.NewServeMux(),
		licenses:      deps.Licenses,
		blocklist:     deps.Blocklist,
		auth:          deps.Auth,
		authenticator: deps.Authenticator,
		sharedSecret:  deps.SharedSecret,
		limits:        deps.Limits,
		blockStage:    deps.BlockStage,
		throttle:      deps.Throttle,
		bus:           deps.Bus,
		mailer:        deps.Mailer,
		abuseTTL:      deps.AbuseTTL,
		logger:        deps.Logger,
	}
	api.registerRoutes()
	return api
}

// registerRoutes declares every route together with its ordered chain:
// rate limiter, blocklist, then one of {token auth + role, shared secret}.
func (a *GateAPI) registerRoutes() {
	// Auth routes
	a.mux.Handle("POST /api/auth/login", a.public("auth", a.handleLogin))
	a.mux.Handle("POST /api/auth/revoke", a.authed("default", a.handleRevokeToken))

	// License routes
	a.mux.Handle("POST /api/licenses", a.role("default", models.RoleAdmin, a.handleCreateLicense))
	a.mux.Handle("GET /api/licenses", a.authed("default", a.handleGetLicenses))
	a.mux.Handle("PUT /api/licenses", a.role("default", models.RoleAdmin, a.handleUpdateLicense))
	a.mux.Handle("DELETE /api/licenses", a.role("default", models.RoleAdmin, a.handleDeleteLicense))
	a.mux.Handle("GET /api/licenses/info", a.role("default", models.RoleAdmin, a.handleLicenseInfo))

	// Service-to-service validation: unauthenticated, tight budget.
	a.mux.Handle("POST /api/licenses/validate", a.public("validate", a.handleValidateLicense))

	// Blocklist routes
	a.mux.Handle("POST /api/blocklist", a.role("default", models.RoleAdmin, a.handleBlockIP))
	a.mux.Handle("DELETE /api/blocklist", a.role("default", models.RoleAdmin, a.handleUnblockIP))
	a.mux.Handle("GET /api/blocklist", a.role("default", models.RoleAdmin, a.handleListBlocked))

	// Automated abuse signal, shared-secret strategy.
	a.mux.Handle("POST /api/internal/abuse", a.secret("default", a.handleAbuseReport))

	// Public status + admin audit stream.
	a.mux.Handle("GET /api/health", a.public("default", a.handleHealth))
	a.mux.Handle("GET /api/events", a.role("default", models.RoleAdmin, a.handleEvents))
}

// public: rate limiter and blocklist only.
func (a *GateAPI) public(limiter string, h http.HandlerFunc) http.Handler {
	chain := middleware.NewChain(a.limits.Get(limiter), a.blockStage)
	return chain.Then(h)
}

// authed: any verified subject, no specific role.
func (a *GateAPI) authed(limiter string, h http.HandlerFunc) http.Handler {
	chain := middleware.NewChain(a.limits.Get(limiter), a.blockStage, a.authenticator)
	return chain.Then(h)
}

// role: verified subject whose persisted role satisfies the requirement.
func (a *GateAPI) role(limiter string, required models.Role, h http.HandlerFunc) http.Handler {
	chain := middleware.NewChain(
		a.limits.Get(limiter),
		a.blockStage,
		a.authenticator,
		a.authenticator.RequireRole(required),
	)
	return chain.Then(h)
}

// secret: shared-secret header strategy, no per-user subject.
func (a *GateAPI) secret(limiter string, h http.HandlerFunc) http.Handler {
	chain := middleware.NewChain(a.limits.Get(limiter), a.blockStage, a.sharedSecret)
	return chain.Then(h)
}

// Handler wraps the route table with the outermost process-wide stages.
func (a *GateAPI) Handler() http.Handler {
	chain := middleware.NewChain(
		middleware.NewRecovery(a.logger),
		middleware.NewLogging(a.logger, middleware.WithExcludePaths([]string{"/api/auth/login"})),
		middleware.NewSecurityHeaders(),
		a.throttle,
	)
	return chain.Then(a.mux)
}

func (a *GateAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// serviceError maps domain sentinels onto the response status contract and
// hides everything unexpected behind a generic 500.
func (a *GateAPI) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, license.ErrNotFound), errors.Is(err, blocklist.ErrNotFound):
		respond.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, license.ErrValidUntilRequired):
		respond.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		respond.Error(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrUserLocked):
		respond.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrRevokedToken):
		respond.Error(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrUsernameTaken):
		respond.Error(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.Error("Unexpected service fault", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
