package license

import (
	"crypto/rand"
	"database/sql"
	"encoding/base32"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/victorgomez09/keygate/internal/events"
	"github.com/victorgomez09/keygate/internal/models"
)

// Store is the persistence surface the license service depends on.
// IncrementLicenseUsage must be a single atomic read-modify-write at the
// store layer; the service compares the quota against the post-increment
// value it returns.
type Store interface {
	CreateLicense(lic *models.License) error
	GetLicenseByID(id string) (*models.License, error)
	GetLicenseByKey(key string) (*models.License, error)
	GetLicensesByUserID(userID string) ([]models.License, error)
	ListLicenses() ([]models.License, error)
	UpdateLicense(lic *models.License) error
	DeleteLicense(id string) error
	IncrementLicenseUsage(id, ip string) (*models.License, error)
	RecordFailedAttempt(ip string) error
	CountFailedAttempts(ip string, since time.Time) (int, error)
}

// Config holds the defaults applied when an issuing admin omits a value.
type Config struct {
	DefaultRequestLimit int
}

// Service owns the license lifecycle and the validate decision.
type Service struct {
	store  Store
	config Config
	bus    *events.Bus
	logger *zap.Logger
}

func NewService(store Store, config Config, bus *events.Bus, logger *zap.Logger) *Service {
	if config.DefaultRequestLimit <= 0 {
		config.DefaultRequestLimit = 1000
	}

	return &Service{
		store:  store,
		config: config,
		bus:    bus,
		logger: logger,
	}
}

// CreateParams carries the issuing admin's input. ValidUntil is mandatory.
type CreateParams struct {
	Key          string
	Type         string
	UserID       string
	AdminID      string
	HWIDs        []string
	RequestLimit int
	ValidUntil   time.Time
}

func (s *Service) Create(params CreateParams) (*models.License, error) {
	if params.ValidUntil.IsZero() {
		return nil, ErrValidUntilRequired
	}

	if params.Key == "" {
		key, err := generateKey()
		if err != nil {
			return nil, err
		}
		params.Key = key
	}

	if params.RequestLimit <= 0 {
		params.RequestLimit = s.config.DefaultRequestLimit
	}

	if params.Type == "" {
		params.Type = "standard"
	}

	if params.HWIDs == nil {
		params.HWIDs = []string{}
	}

	lic := &models.License{
		ID:           uuid.NewString(),
		Key:          params.Key,
		Type:         params.Type,
		UserID:       params.UserID,
		AdminID:      params.AdminID,
		HWIDs:        params.HWIDs,
		RequestLimit: params.RequestLimit,
		RequestCount: 0,
		ValidUntil:   params.ValidUntil,
		CreatedAt:    time.Now(),
	}

	if err := s.store.CreateLicense(lic); err != nil {
		return nil, err
	}

	s.bus.Publish(events.Event{Kind: events.KindLicenseCreated, Key: lic.Key, Detail: lic.UserID})
	s.logger.Info("License created",
		zap.String("id", lic.ID),
		zap.String("user_id", lic.UserID),
		zap.Time("valid_until", lic.ValidUntil))

	return lic, nil
}

func (s *Service) FindByID(id string) (*models.License, error) {
	lic, err := s.store.GetLicenseByID(id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return lic, err
}

func (s *Service) FindByKey(key string) (*models.License, error) {
	lic, err := s.store.GetLicenseByKey(key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return lic, err
}

func (s *Service) FindByUserID(userID string) ([]models.License, error) {
	return s.store.GetLicensesByUserID(userID)
}

func (s *Service) List() ([]models.License, error) {
	return s.store.ListLicenses()
}

// UpdatePatch carries the admin-mutable attributes; nil fields are left
// untouched. Device binding happens only here, never during validation.
type UpdatePatch struct {
	Type         *string
	HWIDs        *[]string
	RequestLimit *int
	ValidUntil   *time.Time
}

func (s *Service) Update(id string, patch UpdatePatch) (*models.License, error) {
	lic, err := s.FindByID(id)
	if err != nil {
		return nil, err
	}

	if patch.Type != nil {
		lic.Type = *patch.Type
	}
	if patch.HWIDs != nil {
		lic.HWIDs = *patch.HWIDs
	}
	if patch.RequestLimit != nil {
		lic.RequestLimit = *patch.RequestLimit
	}
	if patch.ValidUntil != nil {
		lic.ValidUntil = *patch.ValidUntil
	}

	if err := s.store.UpdateLicense(lic); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return lic, nil
}

// Delete revokes a license. This is the only persisted terminal transition;
// expiry and quota exhaustion are recomputed on every validation instead.
func (s *Service) Delete(id string) error {
	if err := s.store.DeleteLicense(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	s.bus.Publish(events.Event{Kind: events.KindLicenseRevoked, Key: id})
	return nil
}

func (s *Service) IncrementUsage(id, ip string) (*models.License, error) {
	lic, err := s.store.IncrementLicenseUsage(id, ip)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return lic, err
}

// Validate is the core gating decision for a presented key and device id.
// Expected rejections (unknown key, expiry, device mismatch, exhausted
// quota) come back as ok=false with a nil error; only a store fault
// produces a non-nil error.
//
// The quota check runs against the post-increment counter and passes only
// while it is strictly below the limit, so a license with request_limit N
// admits N-1 validations. That cutoff is load-bearing for existing
// deployments and is kept as-is.
func (s *Service) Validate(key, hwid, ip string) (bool, error) {
	lic, err := s.store.GetLicenseByKey(key)
	if errors.Is(err, sql.ErrNoRows) {
		s.reject(key, ip, "unknown key")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if lic.Expired(time.Now()) {
		s.reject(key, ip, ErrExpired.Error())
		return false, nil
	}

	if !lic.BoundTo(hwid) {
		s.reject(key, ip, ErrDeviceMismatch.Error())
		return false, nil
	}

	updated, err := s.store.IncrementLicenseUsage(lic.ID, ip)
	if err != nil {
		return false, err
	}

	if updated.RequestCount >= updated.RequestLimit {
		s.reject(key, ip, ErrQuotaExceeded.Error())
		return false, nil
	}

	s.bus.Publish(events.Event{Kind: events.KindLicenseValidated, Key: key, IP: ip})
	return true, nil
}

func (s *Service) reject(key, ip, reason string) {
	if err := s.store.RecordFailedAttempt(ip); err != nil {
		s.logger.Warn("Failed to record failed attempt", zap.Error(err))
	}

	s.bus.Publish(events.Event{Kind: events.KindLicenseRejected, Key: key, IP: ip, Detail: reason})
	s.logger.Info("License validation rejected",
		zap.String("reason", reason),
		zap.String("ip", ip))
}

// Info is the admin-facing diagnostic view of a license.
type Info struct {
	License        *models.License `json:"license"`
	Status         string          `json:"status"`
	Remaining      int             `json:"remaining"`
	FailedAttempts int             `json:"failed_attempts_24h"`
}

// DiagnosticInfo resolves a license by key together with its computed soft
// state and the last day's failed-attempt count for its most recent caller.
// Remaining counts validations that can still succeed under the strict
// post-increment compare.
func (s *Service) DiagnosticInfo(key string) (*Info, error) {
	lic, err := s.FindByKey(key)
	if err != nil {
		return nil, err
	}

	status := "active"
	switch {
	case lic.Expired(time.Now()):
		status = "expired"
	case lic.RequestCount+1 >= lic.RequestLimit:
		status = "quota_exceeded"
	}

	remaining := lic.RequestLimit - lic.RequestCount - 1
	if remaining < 0 {
		remaining = 0
	}

	var attempts int
	if lic.LastUsedIP != "" {
		attempts, err = s.store.CountFailedAttempts(lic.LastUsedIP, time.Now().Add(-24*time.Hour))
		if err != nil {
			return nil, err
		}
	}

	return &Info{
		License:        lic,
		Status:         status,
		Remaining:      remaining,
		FailedAttempts: attempts,
	}, nil
}

// generateKey creates a grouped, human-transcribable license key.
func generateKey() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	var groups []string
	for i := 0; i+4 <= 20 && i+4 <= len(enc); i += 4 {
		groups = append(groups, enc[i:i+4])
	}
	return "KG-" + strings.Join(groups, "-"), nil
}
