package domain

import (
	"errors"
	"strings"
	"time"

	identitydomain "digicheese/backend/internal/identity/domain"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidUser wraps a Validate failure.
	ErrInvalidUser   = errors.New("invalid user")
)

const maxUsernameLength = 64

// User is an operator account. PasswordHash never leaves the service layer.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Active       bool
	Roles        identitydomain.RoleSet
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Credential is what login needs to authenticate a username.
type Credential struct {
	UserID       string
	PasswordHash string
	Active       bool
	Roles        identitydomain.RoleSet
}

// NormalizeUsername trims surrounding whitespace. Usernames are otherwise case-sensitive.
func NormalizeUsername(s string) string {
	return strings.TrimSpace(s)
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	u.Username = NormalizeUsername(u.Username)
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Username == "" {
		return errors.New("username is required")
	}
	if len(u.Username) > maxUsernameLength {
		return errors.New("username must be at most 64 characters")
	}
	if strings.ContainsAny(u.Username, " \t\r\n") {
		return errors.New("username must not contain whitespace")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}
