// Package httpx maps domain errors to the JSON error body returned by every HTTP endpoint.
package httpx

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	identitydomain "digicheese/backend/internal/identity/domain"
	"digicheese/backend/internal/security"
	userdomain "digicheese/backend/internal/user/domain"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e Error) Error() string { return e.Code + ": " + e.Message }

// Error codes.
const (
	CodeBadRequest         = "bad_request"
	CodeValidation         = "validation_error"
	CodeUnauthenticated    = "unauthenticated"
	CodeInvalidCredentials = "invalid_credentials"
	CodeRefreshRejected    = "refresh_rejected"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeTooManyAttempts    = "too_many_attempts"
	CodeInternal           = "internal_error"
)

// Classify returns the response for err. Every token problem collapses to one 401 so
// clients cannot probe which check failed.
func Classify(err error) Error {
	var e Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, identitydomain.ErrRefreshRejected):
		return Error{http.StatusUnauthorized, CodeRefreshRejected, "session expired, log in again"}
	case errors.Is(err, identitydomain.ErrInvalidCredentials):
		return Error{http.StatusUnauthorized, CodeInvalidCredentials, "invalid username or password"}
	case errors.Is(err, identitydomain.ErrTooManyAttempts):
		return Error{http.StatusTooManyRequests, CodeTooManyAttempts, "too many login attempts, try again later"}
	case errors.Is(err, identitydomain.ErrInsufficientRole):
		return Error{http.StatusForbidden, CodeForbidden, "insufficient role"}
	case errors.Is(err, identitydomain.ErrUnauthenticated),
		errors.Is(err, identitydomain.ErrTokenRevoked),
		errors.Is(err, identitydomain.ErrSessionPairMismatch),
		errors.Is(err, security.ErrTokenMalformed),
		errors.Is(err, security.ErrTokenExpired),
		errors.Is(err, security.ErrTokenInvalidSignature):
		return Error{http.StatusUnauthorized, CodeUnauthenticated, "authentication required"}
	case errors.Is(err, userdomain.ErrUserNotFound):
		return Error{http.StatusNotFound, CodeNotFound, "user not found"}
	case errors.Is(err, userdomain.ErrUsernameTaken):
		return Error{http.StatusConflict, CodeConflict, "username already taken"}
	case errors.Is(err, userdomain.ErrInvalidUser):
		return Error{http.StatusBadRequest, CodeValidation, err.Error()}
	case errors.Is(err, identitydomain.ErrUnknownRole):
		return Error{http.StatusBadRequest, CodeValidation, err.Error()}
	default:
		return Error{http.StatusInternalServerError, CodeInternal, "internal error"}
	}
}

// Abort writes the classified error and stops the handler chain. The original error is
// attached to the gin context for the access log.
func Abort(c *gin.Context, err error) {
	e := Classify(err)
	_ = c.Error(err)
	if e.Status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Bearer realm="digicheese"`)
	}
	c.AbortWithStatusJSON(e.Status, e)
}

// AbortWith writes an explicit error.
func AbortWith(c *gin.Context, status int, code, message string) {
	Abort(c, Error{Status: status, Code: code, Message: message})
}

// BadRequest writes a 400 error response.
func BadRequest(c *gin.Context, message string) {
	AbortWith(c, http.StatusBadRequest, CodeBadRequest, message)
}
