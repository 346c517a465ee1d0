package telemetry

import (
	"errors"

	"digicheese/backend/internal/identity/domain"
	"digicheese/backend/internal/security"
)

// Reason returns a low-cardinality label for an authentication failure, used as the
// "reason" attribute on metrics and events.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrTooManyAttempts):
		return "too_many_attempts"
	case errors.Is(err, domain.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, domain.ErrSessionPairMismatch):
		return "pair_mismatch"
	case errors.Is(err, domain.ErrInsufficientRole):
		return "insufficient_role"
	case errors.Is(err, domain.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, security.ErrTokenExpired):
		return "expired"
	case errors.Is(err, security.ErrTokenInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, security.ErrTokenMalformed), errors.Is(err, domain.ErrUnknownRole):
		return "malformed"
	default:
		return "internal"
	}
}
