package blocklist

import (
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/victorgomez09/keygate/internal/events"
	"github.com/victorgomez09/keygate/internal/models"
)

// ErrNotFound is returned when no block exists for the given address.
var ErrNotFound = errors.New("ip address is not blocked")

// Store is the persistence surface the blocklist depends on. Blocking an
// already-blocked address must behave as an upsert.
type Store interface {
	UpsertBlockedIP(b *models.BlockedIP) error
	GetBlockedIP(ip string) (*models.BlockedIP, error)
	DeleteBlockedIP(ip string) error
	ListBlockedIPs(limit, offset int) ([]models.BlockedIP, int, error)
}

// Service owns blocklist mutations and the per-request "is this address
// blocked" decision. Expired blocks are never deleted; they simply stop
// matching at lookup time.
type Service struct {
	store  Store
	bus    *events.Bus
	logger *zap.Logger
}

func NewService(store Store, bus *events.Bus, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		bus:    bus,
		logger: logger,
	}
}

// Block denylists an address. Re-blocking refreshes reason, issuer and
// expiry rather than erroring. A nil expiresAt means the block is permanent.
func (s *Service) Block(ip, blockedBy, reason string, expiresAt *time.Time) (*models.BlockedIP, error) {
	b := &models.BlockedIP{
		IPAddress: ip,
		Reason:    reason,
		BlockedBy: blockedBy,
		BlockedAt: time.Now(),
		ExpiresAt: expiresAt,
	}

	if err := s.store.UpsertBlockedIP(b); err != nil {
		return nil, err
	}

	s.bus.Publish(events.Event{Kind: events.KindIPBlocked, IP: ip, Detail: reason})
	s.logger.Info("IP blocked",
		zap.String("ip", ip),
		zap.String("blocked_by", blockedBy),
		zap.String("reason", reason))

	return b, nil
}

func (s *Service) Unblock(ip string) error {
	if err := s.store.DeleteBlockedIP(ip); err != nil {
		return err
	}

	s.bus.Publish(events.Event{Kind: events.KindIPUnblocked, IP: ip})
	s.logger.Info("IP unblocked", zap.String("ip", ip))
	return nil
}

// IsBlocked reports whether an active block exists for the address. A block
// whose expiry has passed is treated as absent without being deleted.
// A store fault surfaces as an error so the caller can pick its own failure
// posture; the gateway middleware fails open on it.
func (s *Service) IsBlocked(ip string) (bool, error) {
	b, err := s.store.GetBlockedIP(ip)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return b.Active(time.Now()), nil
}

// Get returns the raw block record, active or not.
func (s *Service) Get(ip string) (*models.BlockedIP, error) {
	b, err := s.store.GetBlockedIP(ip)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// List returns one page of block records plus the total count. Page numbers
// start at 1.
func (s *Service) List(page, pageSize int) ([]models.BlockedIP, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	return s.store.ListBlockedIPs(pageSize, (page-1)*pageSize)
}
