package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the auth metrics.
const MeterName = "digicheese/backend/auth"

// AuthMetrics counts authentication outcomes. A nil *AuthMetrics records nothing.
type AuthMetrics struct {
	logins      metric.Int64Counter
	refreshes   metric.Int64Counter
	logouts     metric.Int64Counter
	denials     metric.Int64Counter
	rejections  metric.Int64Counter
	revocations metric.Int64Counter
}

// NewAuthMetrics creates the counters on the global MeterProvider.
func NewAuthMetrics() (*AuthMetrics, error) {
	return NewAuthMetricsWithMeter(otel.Meter(MeterName))
}

// NewAuthMetricsWithMeter creates the counters on meter.
func NewAuthMetricsWithMeter(meter metric.Meter) (*AuthMetrics, error) {
	var m AuthMetrics
	var err error
	if m.logins, err = meter.Int64Counter("auth.login.attempts", metric.WithDescription("Login attempts by outcome")); err != nil {
		return nil, err
	}
	if m.refreshes, err = meter.Int64Counter("auth.refresh.attempts", metric.WithDescription("Refresh attempts by outcome")); err != nil {
		return nil, err
	}
	if m.logouts, err = meter.Int64Counter("auth.logouts", metric.WithDescription("Completed logouts")); err != nil {
		return nil, err
	}
	if m.denials, err = meter.Int64Counter("auth.guard.denied", metric.WithDescription("Guard rejections by reason")); err != nil {
		return nil, err
	}
	if m.rejections, err = meter.Int64Counter("auth.resolve.rejected", metric.WithDescription("Requests rejected by identity resolution")); err != nil {
		return nil, err
	}
	if m.revocations, err = meter.Int64Counter("auth.tokens.revoked", metric.WithDescription("Token ids added to the revocation registry")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *AuthMetrics) Login(ctx context.Context, outcome, reason string) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome), attribute.String("reason", reason)))
}

func (m *AuthMetrics) Refresh(ctx context.Context, outcome, reason string) {
	if m == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome), attribute.String("reason", reason)))
}

func (m *AuthMetrics) Logout(ctx context.Context) {
	if m == nil {
		return
	}
	m.logouts.Add(ctx, 1)
}

func (m *AuthMetrics) GuardDenied(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.denials.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *AuthMetrics) ResolveRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *AuthMetrics) Revoked(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.revocations.Add(ctx, int64(n))
}

// RegisterRevocationGauge reports the live size of the revocation registry.
func RegisterRevocationGauge(meter metric.Meter, size func() int) error {
	_, err := meter.Int64ObservableGauge("auth.revocation.entries",
		metric.WithDescription("Token ids currently held in the revocation registry"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(size()))
			return nil
		}),
	)
	return err
}
