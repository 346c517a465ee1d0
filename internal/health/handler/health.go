// Package handler reports liveness and readiness over HTTP and through the standard gRPC
// health service.
package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const checkTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is satisfied by the Rego decider.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

type check struct {
	name string
	fn   func(ctx context.Context) error
}

// Server runs the readiness checks. Liveness never depends on them.
type Server struct {
	checks []check
}

// Option adds a readiness check.
type Option func(*Server)

// WithCheck adds a named readiness check, e.g. the Redis limiter ping.
func WithCheck(name string, fn func(ctx context.Context) error) Option {
	return func(s *Server) {
		if fn != nil {
			s.checks = append(s.checks, check{name: name, fn: fn})
		}
	}
}

// NewServer returns a Server checking the database and the policy engine. Either may be nil,
// in which case that check is skipped.
func NewServer(pinger Pinger, policy PolicyChecker, opts ...Option) *Server {
	s := &Server{}
	if pinger != nil {
		s.checks = append(s.checks, check{name: "database", fn: pinger.PingContext})
	}
	if policy != nil {
		s.checks = append(s.checks, check{name: "policy", fn: policy.HealthCheck})
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check runs every readiness check and returns "ok" or the error text per check name.
func (s *Server) Check(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string, len(s.checks))
	ready := true
	for _, c := range s.checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.fn(cctx)
		cancel()
		if err != nil {
			ready = false
			results[c.name] = err.Error()
			zerolog.Ctx(ctx).Warn().Err(err).Str("check", c.name).Msg("readiness check failed")
			continue
		}
		results[c.name] = "ok"
	}
	return results, ready
}

// Register mounts GET /healthz and GET /readyz.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/healthz", s.Liveness)
	r.GET("/readyz", s.Readiness)
}

func (s *Server) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Readiness(c *gin.Context) {
	results, ready := s.Check(c.Request.Context())
	status, code := "ok", http.StatusOK
	if !ready {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "checks": results})
}

// SyncGRPC publishes the current readiness as the overall serving status of hs.
func (s *Server) SyncGRPC(ctx context.Context, hs *health.Server) bool {
	_, ready := s.Check(ctx)
	st := healthpb.HealthCheckResponse_SERVING
	if !ready {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", st)
	return ready
}

// WatchGRPC calls SyncGRPC immediately and then every interval until ctx is done.
func (s *Server) WatchGRPC(ctx context.Context, hs *health.Server, interval time.Duration) {
	s.SyncGRPC(ctx, hs)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			s.SyncGRPC(ctx, hs)
		}
	}
}

// Names returns the configured check names in sorted order.
func (s *Server) Names() []string {
	out := make([]string, 0, len(s.checks))
	for _, c := range s.checks {
		out = append(out, c.name)
	}
	sort.Strings(out)
	return out
}
