package models

import (
	"time"
)

type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "administrator"
	RoleCustomer  Role = "customer"
	RoleDeveloper Role = "developer"
)

// Satisfies reports whether a subject holding this role passes a check for
// the required role. The owner role passes every check; administrators pass
// checks for any role below owner.
func (r Role) Satisfies(required Role) bool {
	if r == required || r == RoleOwner {
		return true
	}
	return r == RoleAdmin && required != RoleOwner
}

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleOwner, RoleAdmin, RoleCustomer, RoleDeveloper:
		return Role(s), true
	}
	return "", false
}

// License is a durable, keyed permission record granting bounded usage of a
// protected capability. Expiry and quota exhaustion are never persisted as a
// status column; they are recomputed at validation time.
type License struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	Type         string    `json:"type"`
	UserID       string    `json:"user_id"`
	AdminID      string    `json:"admin_id"`
	HWIDs        []string  `json:"hwids"`
	RequestLimit int       `json:"request_limit"`
	RequestCount int       `json:"request_count"`
	ValidUntil   time.Time `json:"valid_until"`
	LastUsedIP   string    `json:"last_used_ip"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expired reports whether the license is past its validity instant.
func (l *License) Expired(now time.Time) bool {
	return now.After(l.ValidUntil)
}

// BoundTo reports whether the presented device identifier is acceptable.
// A license with no registered devices accepts any identifier; once any
// device is registered, only registered devices pass.
func (l *License) BoundTo(hwid string) bool {
	if len(l.HWIDs) == 0 {
		return true
	}
	for _, h := range l.HWIDs {
		if h == hwid {
			return true
		}
	}
	return false
}

type BlockedIP struct {
	ID        int64      `json:"id"`
	IPAddress string     `json:"ip_address"`
	Reason    string     `json:"reason"`
	BlockedBy string     `json:"blocked_by"`
	BlockedAt time.Time  `json:"blocked_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Active reports whether the block still applies. Expired blocks are kept in
// storage and treated as inactive at lookup time only.
func (b *BlockedIP) Active(now time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

type FailedAttempt struct {
	ID        int64     `json:"id"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID             int64      `json:"id"`
	Username       string     `json:"username"`
	Password       string     `json:"-"`
	Role           Role       `json:"role"`
	LastLoginAt    *time.Time `json:"last_login_at"`
	LastLoginIP    string     `json:"last_login_ip"`
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type Token struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Token      string     `json:"token"`
	JTI        string     `json:"-"`
	Role       Role       `json:"role"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt time.Time  `json:"last_used_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	ClientIP   string     `json:"client_ip"`
	UserAgent  string     `json:"user_agent"`
}

// Subject is the authenticated principal resolved from a verified token.
// The role carried here is re-read from the store by the role gate; it is
// never trusted from the token alone.
type Subject struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}
