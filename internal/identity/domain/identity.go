package domain

import "time"

// Identity is the caller resolved from a valid session pair. It lives for one request.
type Identity struct {
	SubjectID        string
	Roles            RoleSet
	AccessTokenID    string
	RefreshTokenID   string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
