package telemetry

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	var total int64
	switch d := data.(type) {
	case metricdata.Sum[int64]:
		for _, dp := range d.DataPoints {
			total += dp.Value
		}
	case metricdata.Gauge[int64]:
		for _, dp := range d.DataPoints {
			total += dp.Value
		}
	default:
		t.Fatalf("unexpected aggregation %T", data)
	}
	return total
}

func TestAuthMetrics_Counters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewAuthMetricsWithMeter(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewAuthMetricsWithMeter: %v", err)
	}
	ctx := context.Background()
	m.Login(ctx, OutcomeSuccess, "")
	m.Login(ctx, OutcomeFailure, "invalid_credentials")
	m.Refresh(ctx, OutcomeFailure, "revoked")
	m.Logout(ctx)
	m.GuardDenied(ctx, "insufficient_role")
	m.ResolveRejected(ctx, "expired")
	m.Revoked(ctx, 2)
	m.Revoked(ctx, 0)

	got := collect(t, reader)
	want := map[string]int64{
		"auth.login.attempts":   2,
		"auth.refresh.attempts": 1,
		"auth.logouts":          1,
		"auth.guard.denied":     1,
		"auth.resolve.rejected": 1,
		"auth.tokens.revoked":   2,
	}
	for name, n := range want {
		data, ok := got[name]
		if !ok {
			t.Errorf("metric %q not recorded", name)
			continue
		}
		if s := sumOf(t, data); s != n {
			t.Errorf("%s = %d, want %d", name, s, n)
		}
	}
}

func TestAuthMetrics_NilIsNoop(t *testing.T) {
	var m *AuthMetrics
	ctx := context.Background()
	m.Login(ctx, OutcomeSuccess, "")
	m.Refresh(ctx, OutcomeSuccess, "")
	m.Logout(ctx)
	m.GuardDenied(ctx, "x")
	m.ResolveRejected(ctx, "x")
	m.Revoked(ctx, 1)
}

func TestRegisterRevocationGauge(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	size := 3
	if err := RegisterRevocationGauge(mp.Meter("test"), func() int { return size }); err != nil {
		t.Fatalf("RegisterRevocationGauge: %v", err)
	}
	got := collect(t, reader)
	if s := sumOf(t, got["auth.revocation.entries"]); s != 3 {
		t.Errorf("auth.revocation.entries = %d, want 3", s)
	}
}
