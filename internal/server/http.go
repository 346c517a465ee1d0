// Package server assembles the HTTP router and the gRPC health server.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	audithandler "digicheese/backend/internal/audit/handler"
	healthhandler "digicheese/backend/internal/health/handler"
	identityhandler "digicheese/backend/internal/identity/handler"
	"digicheese/backend/internal/platform/httpx"
	"digicheese/backend/internal/platform/rbac"
	"digicheese/backend/internal/server/middleware"
	userhandler "digicheese/backend/internal/user/handler"
)

// LenientPaths must stay reachable with a stale or broken session. Pass them to
// middleware.WithLenientPaths when building the resolver.
var LenientPaths = []string{
	identityhandler.PathLogin,
	identityhandler.PathRefresh,
	identityhandler.PathLogout,
	"/healthz",
	"/readyz",
}

// Deps holds the handlers mounted by NewRouter. Users, Audit and Health may be nil.
type Deps struct {
	Logger   zerolog.Logger
	Resolver *middleware.Resolver
	Decider  rbac.Decider
	Auth     *identityhandler.AuthHandler
	Users    *userhandler.UserHandler
	Audit    *audithandler.AuditHandler
	Health   *healthhandler.Server
}

// NewRouter returns the gin engine. Middleware order: request id, access log, panic
// recovery, session resolution.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logger(deps.Logger),
		middleware.Recovery(),
		deps.Resolver.Handler(),
	)
	r.NoRoute(func(c *gin.Context) {
		httpx.AbortWith(c, http.StatusNotFound, httpx.CodeNotFound, "route not found")
	})

	if deps.Health != nil {
		deps.Health.Register(r)
	}
	deps.Auth.Register(r, deps.Decider)
	if deps.Users != nil {
		deps.Users.Register(r, deps.Decider)
	}
	if deps.Audit != nil {
		deps.Audit.Register(r, deps.Decider)
	}
	return r
}
