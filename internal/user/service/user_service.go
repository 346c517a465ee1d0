// Package service manages operator accounts and their role assignments.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	identitydomain "digicheese/backend/internal/identity/domain"
	"digicheese/backend/internal/security"
	"digicheese/backend/internal/user/domain"
	"digicheese/backend/internal/user/repository"
)

// CreateUserInput is a new account. Password is plaintext and is hashed before storage.
type CreateUserInput struct {
	Username string
	Password string
	Roles    identitydomain.RoleSet
	Active   bool
}

// UserService creates users and edits their roles. Role changes take effect at the user's
// next login; tokens already issued keep the roles they were signed with.
type UserService struct {
	repo   repository.Repository
	hasher *security.Hasher
	newID  func() string
}

// NewUserService returns a UserService.
func NewUserService(repo repository.Repository, hasher *security.Hasher) *UserService {
	return &UserService{repo: repo, hasher: hasher, newID: uuid.NewString}
}

// CreateUser hashes the password and persists the user with its roles.
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &domain.User{
		ID:           s.newID(),
		Username:     in.Username,
		PasswordHash: hash,
		Active:       in.Active,
		Roles:        in.Roles,
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidUser, err)
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("user_id", u.ID).Strs("roles", u.Roles.Strings()).Msg("user created")
	return u, nil
}

// GetUser returns the user or domain.ErrUserNotFound.
func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *UserService) ListRoles(ctx context.Context, userID string) (identitydomain.RoleSet, error) {
	return s.repo.ListRoles(ctx, userID)
}

// AddRole grants role and returns the resulting role set.
func (s *UserService) AddRole(ctx context.Context, userID string, role identitydomain.Role) (identitydomain.RoleSet, error) {
	if err := s.repo.AddRole(ctx, userID, role); err != nil {
		return nil, err
	}
	s.logRoleChange(ctx, userID, "granted", role)
	return s.repo.ListRoles(ctx, userID)
}

// RemoveRole revokes role and returns the resulting role set.
func (s *UserService) RemoveRole(ctx context.Context, userID string, role identitydomain.Role) (identitydomain.RoleSet, error) {
	if err := s.repo.RemoveRole(ctx, userID, role); err != nil {
		return nil, err
	}
	s.logRoleChange(ctx, userID, "revoked", role)
	return s.repo.ListRoles(ctx, userID)
}

// SetRoles replaces every role of the user.
func (s *UserService) SetRoles(ctx context.Context, userID string, roles identitydomain.RoleSet) (identitydomain.RoleSet, error) {
	if err := s.repo.SetRoles(ctx, userID, roles); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("user_id", userID).Strs("roles", roles.Strings()).Msg("roles replaced")
	return s.repo.ListRoles(ctx, userID)
}

func (s *UserService) logRoleChange(ctx context.Context, userID, action string, role identitydomain.Role) {
	zerolog.Ctx(ctx).Info().Str("user_id", userID).Str("role", string(role)).Msg("role " + action)
}

// EnsureAdmin makes sure username exists, holds ADMIN and logs in with password. A missing
// user is created active. An existing user keeps its other roles; its hash is replaced when
// password no longer verifies or the stored parameters are stale. Reports whether the user
// was created.
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	username = domain.NormalizeUsername(username)
	if username == "" || password == "" {
		return false, fmt.Errorf("%w: admin username and password are required", domain.ErrInvalidUser)
	}
	cred, err := s.repo.GetCredentialByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	if cred == nil {
		_, err := s.CreateUser(ctx, CreateUserInput{
			Username: username,
			Password: password,
			Roles:    identitydomain.NewRoleSet(identitydomain.RoleAdmin),
			Active:   true,
		})
		return err == nil, err
	}

	log := zerolog.Ctx(ctx)
	if !cred.Roles.Has(identitydomain.RoleAdmin) {
		if _, err := s.AddRole(ctx, cred.UserID, identitydomain.RoleAdmin); err != nil {
			return false, err
		}
	}
	if !s.hasher.Verify(password, cred.PasswordHash) || s.hasher.NeedsRehash(cred.PasswordHash) {
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return false, fmt.Errorf("hash password: %w", err)
		}
		if err := s.repo.UpdatePasswordHash(ctx, cred.UserID, hash); err != nil {
			return false, err
		}
		log.Info().Str("user_id", cred.UserID).Msg("admin password hash replaced")
	}
	if !cred.Active {
		log.Warn().Str("user_id", cred.UserID).Msg("admin account exists but is inactive")
	}
	return false, nil
}
