// Package audit persists authentication events so administrators can review who logged in,
// refreshed, logged out or was denied.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"digicheese/backend/internal/audit/domain"
	auditrepo "digicheese/backend/internal/audit/repository"
	"digicheese/backend/internal/telemetry"
)

// Recorder implements telemetry.EventEmitter by writing each event to the audit repository.
// Errors are returned to the caller; telemetry.EmitAsync logs and drops them.
type Recorder struct {
	repo  auditrepo.Repository
	newID func() string
	now   func() time.Time
}

// NewRecorder returns a Recorder persisting to repo.
func NewRecorder(repo auditrepo.Repository) *Recorder {
	return &Recorder{repo: repo, newID: uuid.NewString, now: time.Now}
}

// Emit stores event. A nil event or repository is a no-op.
func (r *Recorder) Emit(ctx context.Context, event *telemetry.AuthEvent) error {
	if r == nil || r.repo == nil || event == nil {
		return nil
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = r.now()
	}
	return r.repo.Create(ctx, &domain.AuditLog{
		ID:         r.newID(),
		EventType:  string(event.Type),
		Outcome:    event.Outcome,
		Reason:     event.Reason,
		SubjectID:  event.SubjectID,
		Username:   event.Username,
		ClientIP:   event.ClientIP,
		RequestID:  event.RequestID,
		OccurredAt: occurred.UTC(),
	})
}
