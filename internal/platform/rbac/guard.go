// Package rbac restricts operations to callers holding at least one of a set of roles.
package rbac

import (
	"context"

	"github.com/gin-gonic/gin"

	"digicheese/backend/internal/identity/domain"
	"digicheese/backend/internal/platform/httpx"
	"digicheese/backend/internal/server/middleware"
)

// Operation is any context-aware call. Protect returns one with the same shape.
type Operation[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Require returns the caller resolved for ctx if d allows it for required.
// It fails with domain.ErrUnauthenticated when no identity was resolved and with
// domain.ErrInsufficientRole when the roles do not qualify.
func Require(ctx context.Context, d Decider, required domain.RoleSet) (*domain.Identity, error) {
	id, ok := middleware.IdentityFrom(ctx)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	allowed, err := d.Allow(ctx, id.Roles, required)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrInsufficientRole
	}
	return id, nil
}

// Protect wraps op so it only runs for callers allowed by d. ctx and req are forwarded
// untouched and op's result is returned as is; op runs on the caller's goroutine.
// It panics if required is empty, since such a guard could never pass.
func Protect[Req, Resp any](d Decider, required domain.RoleSet, op Operation[Req, Resp]) Operation[Req, Resp] {
	mustHaveRoles(required)
	return func(ctx context.Context, req Req) (Resp, error) {
		if _, err := Require(ctx, d, required); err != nil {
			var zero Resp
			return zero, err
		}
		return op(ctx, req)
	}
}

// Handler is the gin form of Protect.
func Handler(d Decider, required domain.RoleSet, h gin.HandlerFunc) gin.HandlerFunc {
	mustHaveRoles(required)
	return func(c *gin.Context) {
		if _, err := Require(c.Request.Context(), d, required); err != nil {
			httpx.Abort(c, err)
			return
		}
		h(c)
	}
}

// Middleware rejects callers not allowed by d before later handlers decode anything.
func Middleware(d Decider, required domain.RoleSet) gin.HandlerFunc {
	mustHaveRoles(required)
	return func(c *gin.Context) {
		if _, err := Require(c.Request.Context(), d, required); err != nil {
			httpx.Abort(c, err)
			return
		}
		c.Next()
	}
}

// Serve adapts op to gin: bind decodes the request, op runs, and its result is written as
// JSON with status. Errors from either step go through httpx.Abort.
func Serve[Req, Resp any](bind func(*gin.Context) (Req, error), op Operation[Req, Resp], status int) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := bind(c)
		if err != nil {
			httpx.Abort(c, err)
			return
		}
		resp, err := op(c.Request.Context(), req)
		if err != nil {
			httpx.Abort(c, err)
			return
		}
		c.JSON(status, resp)
	}
}

func mustHaveRoles(required domain.RoleSet) {
	if len(required) == 0 {
		panic("rbac: guard registered without required roles")
	}
}
