package repository

import (
	"context"
	"database/sql"

	"digicheese/backend/internal/audit/domain"
)

const listAuditLogs = `
SELECT id, event_type, outcome, reason, subject_id, username, client_ip, request_id, occurred_at
FROM auth_audit_log
WHERE ($1 = '' OR subject_id = $1)
  AND ($2 = '' OR event_type = $2)
  AND ($3 = '' OR outcome = $3)
ORDER BY occurred_at DESC, id
LIMIT $4 OFFSET $5`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the entry. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_audit_log (id, event_type, outcome, reason, subject_id, username, client_ip, request_id, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.EventType, a.Outcome, nullString(a.Reason), nullString(a.SubjectID), nullString(a.Username),
		nullString(a.ClientIP), nullString(a.RequestID), a.OccurredAt)
	return err
}

// List returns entries matching f, newest first. Returns (nil, error) only on database errors.
func (r *PostgresRepository) List(ctx context.Context, f domain.Filter) ([]*domain.AuditLog, error) {
	f = f.Normalize()
	rows, err := r.db.QueryContext(ctx, listAuditLogs, f.SubjectID, f.EventType, f.Outcome, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.AuditLog, 0, f.Limit)
	for rows.Next() {
		var a domain.AuditLog
		var reason, subject, username, ip, requestID sql.NullString
		if err := rows.Scan(&a.ID, &a.EventType, &a.Outcome, &reason, &subject, &username, &ip, &requestID, &a.OccurredAt); err != nil {
			return nil, err
		}
		a.Reason, a.SubjectID, a.Username = reason.String, subject.String, username.String
		a.ClientIP, a.RequestID = ip.String, requestID.String
		out = append(out, &a)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
