package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	identitydomain "digicheese/backend/internal/identity/domain"
	"digicheese/backend/internal/user/domain"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const selectUser = `
SELECT u.id, u.username, u.password_hash, u.is_active, u.created_at, u.updated_at,
       COALESCE(string_agg(ur.role, ',' ORDER BY ur.role), '')
FROM users u
LEFT JOIN user_roles ur ON ur.user_id = u.id
`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, selectUser+`WHERE u.id = $1 GROUP BY u.id`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// GetCredentialByUsername returns the credential for username, or nil if not found.
func (r *PostgresRepository) GetCredentialByUsername(ctx context.Context, username string) (*domain.Credential, error) {
	row := r.db.QueryRowContext(ctx, selectUser+`WHERE u.username = $1 GROUP BY u.id`, domain.NormalizeUsername(username))
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.Credential{
		UserID:       u.ID,
		PasswordHash: u.PasswordHash,
		Active:       u.Active,
		Roles:        u.Roles,
	}, nil
}

// Create inserts the user and its roles in one transaction. CreatedAt/UpdatedAt default to now.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, username, password_hash, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			u.ID, u.Username, u.PasswordHash, u.Active, u.CreatedAt, u.UpdatedAt)
		if err != nil {
			if pgCode(err) == pgUniqueViolation {
				return domain.ErrUsernameTaken
			}
			return err
		}
		return insertRoles(ctx, tx, u.ID, u.Roles)
	})
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, userID, hash, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepository) ListRoles(ctx context.Context, userID string) (identitydomain.RoleSet, error) {
	u, err := r.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrUserNotFound
	}
	return u.Roles, nil
}

// AddRole grants role. Granting a role the user already holds is a no-op.
func (r *PostgresRepository) AddRole(ctx context.Context, userID string, role identitydomain.Role) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, string(role))
	if pgCode(err) == pgForeignKeyViolation {
		return domain.ErrUserNotFound
	}
	return err
}

// RemoveRole revokes role. Removing a role the user does not hold is a no-op.
func (r *PostgresRepository) RemoveRole(ctx context.Context, userID string, role identitydomain.Role) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role = $2`, userID, string(role))
		return err
	})
}

// SetRoles replaces the user's roles with exactly roles.
func (r *PostgresRepository) SetRoles(ctx context.Context, userID string, roles identitydomain.RoleSet) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return err
		}
		return insertRoles(ctx, tx, userID, roles)
	})
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func lockUser(ctx context.Context, tx *sql.Tx, userID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrUserNotFound
	}
	return err
}

func insertRoles(ctx context.Context, tx *sql.Tx, userID string, roles identitydomain.RoleSet) error {
	for _, role := range roles.Roles() {
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`, userID, string(role)); err != nil {
			return fmt.Errorf("grant %s: %w", role, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	var roles string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Active, &u.CreatedAt, &u.UpdatedAt, &roles); err != nil {
		return nil, err
	}
	set, err := parseRoleAgg(roles)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.Roles = set
	return &u, nil
}

// parseRoleAgg parses the comma-joined role column produced by string_agg.
func parseRoleAgg(s string) (identitydomain.RoleSet, error) {
	if strings.TrimSpace(s) == "" {
		return identitydomain.NewRoleSet(), nil
	}
	return identitydomain.ParseRoleList(s)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
