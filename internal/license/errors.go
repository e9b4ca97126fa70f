package license

import "errors"

var (
	// ErrNotFound is returned when no license matches the given id, key or user.
	ErrNotFound = errors.New("license not found")
	// ErrValidUntilRequired is returned when a license is created without an expiry instant.
	ErrValidUntilRequired = errors.New("valid_until is required")
	// ErrExpired is returned when a license is past its validity instant.
	ErrExpired = errors.New("license has expired")
	// ErrDeviceMismatch is returned when the presented device id is not in the license's bound set.
	ErrDeviceMismatch = errors.New("device not bound to license")
	// ErrQuotaExceeded is returned when the usage counter has reached the configured limit.
	ErrQuotaExceeded = errors.New("license request quota exceeded")
)
