package auth

import "errors"

var (
	// ErrMissingToken is returned when no bearer credential is presented.
	ErrMissingToken = errors.New("no token provided")
	// ErrInvalidToken is returned when a provided token is invalid or has expired.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrRevokedToken is returned when a token has been explicitly revoked.
	ErrRevokedToken = errors.New("token has been revoked")
	// ErrInvalidCredentials is returned when a user provides incorrect credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserLocked is returned when an account is temporarily locked after repeated failures.
	ErrUserLocked = errors.New("account is temporarily locked")
	// ErrUsernameTaken is returned when creating a user with an existing username.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrUserNotFound is returned when a user record is not in the database.
	ErrUserNotFound = errors.New("user not found")
	// ErrForbidden is returned when the resolved subject's role does not satisfy the route.
	ErrForbidden = errors.New("forbidden")
)
