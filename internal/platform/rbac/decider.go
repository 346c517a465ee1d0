package rbac

import (
	"context"

	"digicheese/backend/internal/identity/domain"
	"digicheese/backend/internal/server/middleware"
	"digicheese/backend/internal/telemetry"
)

// Decider decides whether a caller holding held may perform an operation requiring any of required.
type Decider interface {
	Allow(ctx context.Context, held, required domain.RoleSet) (bool, error)
}

// IntersectionDecider allows when held and required share at least one role.
type IntersectionDecider struct{}

func (IntersectionDecider) Allow(_ context.Context, held, required domain.RoleSet) (bool, error) {
	return held.Intersects(required), nil
}

// Observed wraps d so that every denial is counted and emitted as an auth event.
// metrics and events may be nil.
func Observed(d Decider, metrics *telemetry.AuthMetrics, events telemetry.EventEmitter) Decider {
	return &observedDecider{next: d, metrics: metrics, events: events}
}

type observedDecider struct {
	next    Decider
	metrics *telemetry.AuthMetrics
	events  telemetry.EventEmitter
}

func (o *observedDecider) Allow(ctx context.Context, held, required domain.RoleSet) (bool, error) {
	ok, err := o.next.Allow(ctx, held, required)
	if err != nil || ok {
		return ok, err
	}
	o.metrics.GuardDenied(ctx, telemetry.Reason(domain.ErrInsufficientRole))
	event := &telemetry.AuthEvent{
		Type:      telemetry.EventGuardDenied,
		Outcome:   telemetry.OutcomeFailure,
		Reason:    telemetry.Reason(domain.ErrInsufficientRole),
		RequestID: middleware.RequestIDFrom(ctx),
	}
	if id, found := middleware.IdentityFrom(ctx); found {
		event.SubjectID = id.SubjectID
	}
	telemetry.EmitAsync(ctx, o.events, event)
	return false, nil
}
