package domain

import "errors"

// Authentication and authorization failures. All are terminal for the request.
var (
	// ErrInvalidCredentials covers unknown usernames, inactive users and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenRevoked       = errors.New("token revoked")
	// ErrSessionPairMismatch means the access and refresh tokens disagree on subject or roles.
	ErrSessionPairMismatch = errors.New("session pair mismatch")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrInsufficientRole    = errors.New("insufficient role")
	// ErrRefreshRejected wraps every refresh failure; the client must log in again.
	ErrRefreshRejected = errors.New("refresh rejected")
	ErrTooManyAttempts = errors.New("too many login attempts")
)
