package repository

import (
	"context"

	identitydomain "digicheese/backend/internal/identity/domain"
	"digicheese/backend/internal/user/domain"
)

// Repository defines persistence for users and their role assignments.
type Repository interface {
	// GetByID returns the user with its roles, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetCredentialByUsername returns the login credential for username, or nil if not found.
	GetCredentialByUsername(ctx context.Context, username string) (*domain.Credential, error)
	// Create persists the user and its roles. Returns domain.ErrUsernameTaken on a duplicate username.
	Create(ctx context.Context, u *domain.User) error
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	// The role methods return domain.ErrUserNotFound when userID does not exist.
	ListRoles(ctx context.Context, userID string) (identitydomain.RoleSet, error)
	AddRole(ctx context.Context, userID string, role identitydomain.Role) error
	RemoveRole(ctx context.Context, userID string, role identitydomain.Role) error
	SetRoles(ctx context.Context, userID string, roles identitydomain.RoleSet) error
}
