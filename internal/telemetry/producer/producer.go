// Package producer publishes auth events to a message broker.
package producer

import (
	"context"

	"digicheese/backend/internal/telemetry"
)

// Producer emits auth events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; use telemetry.EmitAsync from request paths.
	Emit(ctx context.Context, event *telemetry.AuthEvent) error
	// Close releases resources (e.g. the Kafka writer). Safe to call if already closed.
	Close() error
}
