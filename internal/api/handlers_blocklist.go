package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/victorgomez09/keygate/internal/middleware"
	"github.com/victorgomez09/keygate/internal/respond"
)

type blockIPRequest struct {
	IP        string     `json:"ip"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type abuseReportRequest struct {
	IP     string `json:"ip"`
	Reason string `json:"reason"`
}

func (a *GateAPI) handleBlockIP(w http.ResponseWriter, r *http.Request) {
	var req blockIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.IP == "" {
		respond.Error(w, http.StatusBadRequest, "ip is required")
		return
	}

	subject, _ := middleware.SubjectFromContext(r.Context())

	blocked, err := a.blocklist.Block(req.IP, strconv.FormatInt(subject.ID, 10), req.Reason, req.ExpiresAt)
	if err != nil {
		a.serviceError(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, blocked)
}

func (a *GateAPI) handleUnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		respond.Error(w, http.StatusBadRequest, "ip is required")
		return
	}

	if err := a.blocklist.Unblock(ip); err != nil {
		a.serviceError(w, err)
		return
	}

	respond.NoContent(w)
}

func (a *GateAPI) handleListBlocked(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	blocked, total, err := a.blocklist.List(page, pageSize)
	if err != nil {
		a.serviceError(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, map[string]any{
		"items": blocked,
		"total": total,
	})
}

// handleAbuseReport is the automated abuse signal: a service-to-service
// caller behind the shared-secret strategy blocks an address with a TTL.
func (a *GateAPI) handleAbuseReport(w http.ResponseWriter, r *http.Request) {
	var req abuseReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.IP == "" {
		respond.Error(w, http.StatusBadRequest, "ip is required")
		return
	}

	if req.Reason == "" {
		req.Reason = "automated abuse signal"
	}

	expiresAt := time.Now().Add(a.abuseTTL)
	blocked, err := a.blocklist.Block(req.IP, "abuse-detector", req.Reason, &expiresAt)
	if err != nil {
		a.serviceError(w, err)
		return
	}

	a.mailer.NotifyAutoBlock(req.IP, req.Reason, expiresAt)
	respond.JSON(w, http.StatusCreated, blocked)
}
