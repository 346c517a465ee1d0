package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"digicheese/backend/internal/identity/domain"
	"digicheese/backend/internal/platform/httpx"
	"digicheese/backend/internal/revocation"
	"digicheese/backend/internal/security"
	"digicheese/backend/internal/telemetry"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refresh_token"

const bearerPrefix = "bearer "

// TokenDecoder verifies and decodes a signed session token.
type TokenDecoder interface {
	Decode(token string) (*security.Claims, error)
}

// Resolver turns the bearer access token and the refresh cookie into an Identity.
type Resolver struct {
	tokens  TokenDecoder
	revoked revocation.Store
	metrics *telemetry.AuthMetrics
	events  telemetry.EventEmitter
	// lenient paths never reject; a failed resolution leaves them anonymous.
	lenient map[string]bool
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithLenientPaths registers full request paths (e.g. /auth/login) that must stay reachable
// with a broken or stale session.
func WithLenientPaths(paths ...string) ResolverOption {
	return func(r *Resolver) {
		for _, p := range paths {
			r.lenient[p] = true
		}
	}
}

// WithMetrics counts rejections. m may be nil.
func WithMetrics(m *telemetry.AuthMetrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// WithEvents emits an auth event per rejection. e may be nil.
func WithEvents(e telemetry.EventEmitter) ResolverOption {
	return func(r *Resolver) { r.events = e }
}

// NewResolver returns a Resolver that decodes with tokens and checks ids against revoked.
func NewResolver(tokens TokenDecoder, revoked revocation.Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{tokens: tokens, revoked: revoked, lenient: make(map[string]bool)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve validates the session pair. It returns nil, nil (anonymous) when either token is
// absent. With both present, the access and refresh tokens must each decode, carry the right
// kind, not be revoked, and agree exactly on subject and role set.
func (r *Resolver) Resolve(ctx context.Context, bearer, refreshToken string) (*domain.Identity, error) {
	if bearer == "" || refreshToken == "" {
		return nil, nil
	}
	access, err := r.validate(ctx, bearer, security.KindAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := r.validate(ctx, refreshToken, security.KindRefresh)
	if err != nil {
		return nil, err
	}

	accessRoles, err := domain.ParseRoles(access.Roles)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", security.ErrTokenMalformed, err)
	}
	refreshRoles, err := domain.ParseRoles(refresh.Roles)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", security.ErrTokenMalformed, err)
	}
	if access.Subject != refresh.Subject || !accessRoles.Equal(refreshRoles) {
		return nil, domain.ErrSessionPairMismatch
	}

	return &domain.Identity{
		SubjectID:        access.Subject,
		Roles:            accessRoles,
		AccessTokenID:    access.ID,
		RefreshTokenID:   refresh.ID,
		AccessExpiresAt:  access.ExpiresAt.Time,
		RefreshExpiresAt: refresh.ExpiresAt.Time,
	}, nil
}

func (r *Resolver) validate(ctx context.Context, token string, kind security.TokenKind) (*security.Claims, error) {
	claims, err := r.tokens.Decode(token)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s token", security.ErrTokenMalformed, kind)
	}
	revoked, err := r.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, domain.ErrTokenRevoked
	}
	return claims, nil
}

// Handler is the gin middleware form. A resolved identity is attached with WithIdentity.
// On failure it responds 401 unless the path is lenient.
func (r *Resolver) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		cookie, _ := c.Cookie(RefreshCookieName)
		id, err := r.Resolve(ctx, extractBearer(c.GetHeader("Authorization")), cookie)
		if err != nil {
			reason := telemetry.Reason(err)
			zerolog.Ctx(ctx).Debug().Err(err).Str("reason", reason).Msg("session resolution failed")
			if r.lenient[c.Request.URL.Path] {
				c.Next()
				return
			}
			r.metrics.ResolveRejected(ctx, reason)
			telemetry.EmitAsync(ctx, r.events, &telemetry.AuthEvent{
				Type:      telemetry.EventResolveFailure,
				Outcome:   telemetry.OutcomeFailure,
				Reason:    reason,
				ClientIP:  c.ClientIP(),
				RequestID: RequestIDFrom(ctx),
			})
			httpx.Abort(c, err)
			return
		}
		if id != nil {
			c.Request = c.Request.WithContext(WithIdentity(ctx, id))
		}
		c.Next()
	}
}

// extractBearer returns the token from an Authorization header value, or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
