package repository

import (
	"context"
	"maps"
	"sync"
	"time"

	identitydomain "digicheese/backend/internal/identity/domain"
	"digicheese/backend/internal/user/domain"
)

// MemoryRepository is an in-process Repository for local runs without Postgres and for tests.
// Data is lost on restart.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[string]*domain.User
	byName map[string]string
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.User), byName: make(map[string]string)}
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

func (r *MemoryRepository) GetCredentialByUsername(_ context.Context, username string) (*domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[domain.NormalizeUsername(username)]
	if !ok {
		return nil, nil
	}
	u := r.byID[id]
	return &domain.Credential{
		UserID:       u.ID,
		PasswordHash: u.PasswordHash,
		Active:       u.Active,
		Roles:        maps.Clone(u.Roles),
	}, nil
}

func (r *MemoryRepository) Create(_ context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[u.Username]; ok {
		return domain.ErrUsernameTaken
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	stored := cloneUser(u)
	if stored.Roles == nil {
		stored.Roles = identitydomain.NewRoleSet()
	}
	r.byID[u.ID] = stored
	r.byName[u.Username] = u.ID
	return nil
}

func (r *MemoryRepository) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	return r.update(userID, func(u *domain.User) { u.PasswordHash = hash })
}

func (r *MemoryRepository) ListRoles(_ context.Context, userID string) (identitydomain.RoleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return maps.Clone(u.Roles), nil
}

func (r *MemoryRepository) AddRole(_ context.Context, userID string, role identitydomain.Role) error {
	return r.update(userID, func(u *domain.User) { u.Roles[role] = struct{}{} })
}

func (r *MemoryRepository) RemoveRole(_ context.Context, userID string, role identitydomain.Role) error {
	return r.update(userID, func(u *domain.User) { delete(u.Roles, role) })
}

func (r *MemoryRepository) SetRoles(_ context.Context, userID string, roles identitydomain.RoleSet) error {
	return r.update(userID, func(u *domain.User) { u.Roles = identitydomain.NewRoleSet(roles.Roles()...) })
}

func (r *MemoryRepository) update(userID string, fn func(*domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func cloneUser(u *domain.User) *domain.User {
	cp := *u
	cp.Roles = maps.Clone(u.Roles)
	return &cp
}
