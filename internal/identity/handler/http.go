// Package handler exposes the session lifecycle over HTTP: login, refresh, logout and the
// current identity. The refresh token travels only in an HttpOnly cookie.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"digicheese/backend/internal/identity/domain"
	"digicheese/backend/internal/identity/service"
	"digicheese/backend/internal/platform/httpx"
	"digicheese/backend/internal/platform/rbac"
	"digicheese/backend/internal/server/middleware"
)

// Route paths. Login, refresh and logout must be registered as lenient with the resolver.
const (
	PathLogin   = "/auth/login"
	PathRefresh = "/auth/refresh"
	PathLogout  = "/auth/logout"
	PathMe      = "/auth/me"
)

// AuthHandler serves the /auth routes.
type AuthHandler struct {
	svc          *service.AuthService
	secureCookie bool
}

// NewAuthHandler returns an AuthHandler. secureCookie sets the Secure attribute on the
// refresh cookie and must only be false for local plain-HTTP development.
func NewAuthHandler(svc *service.AuthService, secureCookie bool) *AuthHandler {
	return &AuthHandler{svc: svc, secureCookie: secureCookie}
}

// Register mounts the routes. /auth/me accepts any role.
func (h *AuthHandler) Register(r gin.IRouter, d rbac.Decider) {
	r.POST(PathLogin, h.Login)
	r.POST(PathRefresh, h.Refresh)
	r.POST(PathLogout, h.Logout)
	r.GET(PathMe, rbac.Handler(d, domain.NewRoleSet(domain.AllRoles...), h.Me))
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type meResponse struct {
	SubjectID       string    `json:"subject_id"`
	Roles           []string  `json:"roles"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BadRequest(c, "username and password are required")
		return
	}
	pair, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		httpx.Abort(c, err)
		return
	}
	h.writePair(c, pair)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	token, _ := c.Cookie(middleware.RefreshCookieName)
	pair, err := h.svc.Refresh(c.Request.Context(), token)
	if err != nil {
		h.clearCookie(c)
		httpx.Abort(c, err)
		return
	}
	h.writePair(c, pair)
}

// Logout revokes the resolved session, or the cookie's refresh token when the session could
// not be resolved, and always clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	id, _ := middleware.IdentityFrom(ctx)
	token, _ := c.Cookie(middleware.RefreshCookieName)
	h.clearCookie(c)
	if err := h.svc.Logout(ctx, id, token); err != nil {
		httpx.Abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Me(c *gin.Context) {
	id, ok := middleware.IdentityFrom(c.Request.Context())
	if !ok {
		httpx.Abort(c, domain.ErrUnauthenticated)
		return
	}
	c.JSON(http.StatusOK, meResponse{
		SubjectID:       id.SubjectID,
		Roles:           id.Roles.Strings(),
		AccessExpiresAt: id.AccessExpiresAt,
	})
}

func (h *AuthHandler) writePair(c *gin.Context, pair *service.SessionPair) {
	h.setCookie(c, pair.Refresh.Token, int(h.svc.RefreshTTL().Seconds()))
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: pair.Access.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.svc.AccessTTL().Seconds()),
	})
}

func (h *AuthHandler) clearCookie(c *gin.Context) {
	h.setCookie(c, "", -1)
}

func (h *AuthHandler) setCookie(c *gin.Context, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.RefreshCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}
