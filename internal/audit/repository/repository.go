package repository

import (
	"context"

	"digicheese/backend/internal/audit/domain"
)

// Repository defines persistence for the auth audit log.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// List returns entries matching f, newest first.
	List(ctx context.Context, f domain.Filter) ([]*domain.AuditLog, error)
}
