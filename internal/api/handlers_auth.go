package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/victorgomez09/keygate/internal/middleware"
	"github.com/victorgomez09/keygate/internal/respond"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	Type      string    `json:"type"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      string    `json:"role"`
}

func (a *GateAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := a.auth.Authenticate(req.Username, req.Password, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		a.serviceError(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, loginResponse{
		Token:     token.Token,
		Type:      "Bearer",
		ExpiresAt: token.ExpiresAt,
		Role:      string(token.Role),
	})
}

func (a *GateAPI) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		respond.Error(w, http.StatusBadRequest, "invalid authorization header")
		return
	}

	if err := a.auth.RevokeToken(strings.TrimPrefix(authHeader, "Bearer ")); err != nil {
		a.serviceError(w, err)
		return
	}

	respond.NoContent(w)
}
