package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"digicheese/backend/internal/telemetry"
)

// LoggerName is the instrumentation scope of auth event log records.
const LoggerName = "digicheese.auth.events"

// recordEmitter is the part of otellog.Logger the emitter needs.
type recordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends auth events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger(LoggerName))
}

// NewEventEmitterWithLogger wraps any record sink; used by tests to capture records.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *telemetry.AuthEvent) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the event to a log record. Denials and failures are emitted at WARN.
func (e *otelEmitter) Emit(ctx context.Context, event *telemetry.AuthEvent) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetObservedTimestamp(time.Now().UTC())
	rec.SetEventName(string(event.Type))
	rec.SetBody(otellog.StringValue(string(event.Type) + " " + event.Outcome))
	if event.Outcome == telemetry.OutcomeSuccess {
		rec.SetSeverity(otellog.SeverityInfo)
		rec.SetSeverityText("INFO")
	} else {
		rec.SetSeverity(otellog.SeverityWarn)
		rec.SetSeverityText("WARN")
	}

	rec.AddAttributes(
		otellog.String("event_type", string(event.Type)),
		otellog.String("outcome", event.Outcome),
	)
	optional := []struct{ key, val string }{
		{"reason", event.Reason},
		{"subject_id", event.SubjectID},
		{"username", event.Username},
		{"client_ip", event.ClientIP},
		{"request_id", event.RequestID},
	}
	for _, kv := range optional {
		if kv.val != "" {
			rec.AddAttributes(otellog.String(kv.key, kv.val))
		}
	}
	e.logger.Emit(ctx, rec)
	return nil
}
