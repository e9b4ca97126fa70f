package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/victorgomez09/keygate/internal/license"
	"github.com/victorgomez09/keygate/internal/middleware"
	"github.com/victorgomez09/keygate/internal/respond"
)

type createLicenseRequest struct {
	Key          string    `json:"key"`
	Type         string    `json:"type"`
	UserID       string    `json:"user_id"`
	HWIDs        []string  `json:"hwids"`
	RequestLimit int       `json:"request_limit"`
	ValidUntil   time.Time `json:"valid_until"`
}

type updateLicenseRequest struct {
	Type         *string    `json:"type"`
	HWIDs        *[]string  `json:"hwids"`
	RequestLimit *int       `json:"request_limit"`
	ValidUntil   *time.Time `json:"valid_until"`
}

type validateLicenseRequest struct {
	Key  string `json:"key"`
	HWID string `json:"hwid"`
}

func (a *GateAPI) handleCreateLicense(w http.ResponseWriter, r *http.Request) {
	var req createLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	subject, _ := middleware.SubjectFromContext(r.Context())

	lic, err := a.licenses.Create(license.CreateParams{
		Key:          req.Key,
		Type:         req.Type,
		UserID:       req.UserID,
		AdminID:      strconv.FormatInt(subject.ID, 10),
		HWIDs:        req.HWIDs,
		RequestLimit: req.RequestLimit,
		ValidUntil:   req.ValidUntil,
	})
	if err != nil {
		a.serviceError(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, lic)
}

// handleGetLicenses serves single-license lookup by id, the user-scoped
// collection, or the full listing depending on query parameters.
func (a *GateAPI) handleGetLicenses(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		lic, err := a.licenses.FindByID(id)
		if err != nil {
			a.serviceError(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, lic)
		return
	}

	if userID := r.URL.Query().Get("user_id"); userID != "" {
		licenses, err := a.licenses.FindByUserID(userID)
		if err != nil {
			a.serviceError(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, licenses)
		return
	}

	licenses, err := a.licenses.List()
	if err != nil {
		a.serviceError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, licenses)
}

func (a *GateAPI) handleUpdateLicense(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respond.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req updateLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lic, err := a.licenses.Update(id, license.UpdatePatch{
		Type:         req.Type,
		HWIDs:        req.HWIDs,
		RequestLimit: req.RequestLimit,
		ValidUntil:   req.ValidUntil,
	})
	if err != nil {
		a.serviceError(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, lic)
}

func (a *GateAPI) handleDeleteLicense(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respond.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := a.licenses.Delete(id); err != nil {
		a.serviceError(w, err)
		return
	}

	respond.NoContent(w)
}

func (a *GateAPI) handleLicenseInfo(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		respond.Error(w, http.StatusBadRequest, "key is required")
		return
	}

	info, err := a.licenses.DiagnosticInfo(key)
	if err != nil {
		a.serviceError(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, info)
}

// handleValidateLicense is the service-to-service validate decision. All
// expected rejections come back as 200 with valid=false so callers branch
// on the boolean, not on status codes.
func (a *GateAPI) handleValidateLicense(w http.ResponseWriter, r *http.Request) {
	var req validateLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ok, err := a.licenses.Validate(req.Key, req.HWID, middleware.ClientIP(r))
	if err != nil {
		a.serviceError(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, map[string]bool{"valid": ok})
}
