// Package handler serves the ADMIN-only user and role management routes under /admin/users.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	identitydomain "digicheese/backend/internal/identity/domain"
	"digicheese/backend/internal/platform/httpx"
	"digicheese/backend/internal/platform/rbac"
	"digicheese/backend/internal/platform/validation"
	"digicheese/backend/internal/user/domain"
	"digicheese/backend/internal/user/service"
)

type createUserRequest struct {
	Username string   `json:"username" validate:"required,max=64"`
	Password string   `json:"password" validate:"required,min=12,max=128"`
	Roles    []string `json:"roles" validate:"required,min=1,dive,role"`
	// Active defaults to true.
	Active *bool `json:"active"`
}

type roleChange struct {
	UserID string
	Role   string
}

type setRolesRequest struct {
	UserID string
	Roles  string
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Active    bool      `json:"active"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type rolesResponse struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

// UserHandler adapts UserService to HTTP. Every operation is wrapped with rbac.Protect.
type UserHandler struct {
	svc *service.UserService
}

// NewUserHandler returns a UserHandler.
func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// Register mounts the routes on r, each restricted to ADMIN through d. The group guard runs
// before any body is decoded, so anonymous callers always get 401.
func (h *UserHandler) Register(r gin.IRouter, d rbac.Decider) {
	admin := identitydomain.NewRoleSet(identitydomain.RoleAdmin)
	g := r.Group("/admin/users", rbac.Middleware(d, admin))
	g.POST("", rbac.Serve(bindCreate, rbac.Protect(d, admin, h.create), http.StatusCreated))
	g.GET("/:id", rbac.Serve(bindID, rbac.Protect(d, admin, h.get), http.StatusOK))
	g.GET("/:id/roles", rbac.Serve(bindID, rbac.Protect(d, admin, h.listRoles), http.StatusOK))
	g.POST("/:id/roles/:role", rbac.Serve(bindRoleChange, rbac.Protect(d, admin, h.addRole), http.StatusOK))
	g.DELETE("/:id/roles/:role", rbac.Serve(bindRoleChange, rbac.Protect(d, admin, h.removeRole), http.StatusOK))
	g.PATCH("/:id/roles", rbac.Serve(bindSetRoles, rbac.Protect(d, admin, h.setRoles), http.StatusOK))
}

func bindCreate(c *gin.Context) (createUserRequest, error) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return req, httpx.Error{Status: http.StatusBadRequest, Code: httpx.CodeBadRequest, Message: "invalid JSON body"}
	}
	return req, nil
}

func bindID(c *gin.Context) (string, error) {
	return c.Param("id"), nil
}

func bindRoleChange(c *gin.Context) (roleChange, error) {
	return roleChange{UserID: c.Param("id"), Role: c.Param("role")}, nil
}

// bindSetRoles requires the roles query parameter; an empty value clears every role.
func bindSetRoles(c *gin.Context) (setRolesRequest, error) {
	roles, ok := c.GetQuery("roles")
	if !ok {
		return setRolesRequest{}, httpx.Error{Status: http.StatusBadRequest, Code: httpx.CodeBadRequest, Message: "roles query parameter is required"}
	}
	return setRolesRequest{UserID: c.Param("id"), Roles: roles}, nil
}

// Binding only decodes; each operation validates its own input after the guard.

func (h *UserHandler) create(ctx context.Context, req createUserRequest) (*userResponse, error) {
	if err := validation.Validate(req); err != nil {
		return nil, err
	}
	roles, err := identitydomain.ParseRoles(req.Roles)
	if err != nil {
		return nil, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	u, err := h.svc.CreateUser(ctx, service.CreateUserInput{
		Username: req.Username,
		Password: req.Password,
		Roles:    roles,
		Active:   active,
	})
	if err != nil {
		return nil, err
	}
	return toUserResponse(u), nil
}

func (h *UserHandler) get(ctx context.Context, id string) (*userResponse, error) {
	u, err := h.svc.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return toUserResponse(u), nil
}

func (h *UserHandler) listRoles(ctx context.Context, id string) (rolesResponse, error) {
	roles, err := h.svc.ListRoles(ctx, id)
	return toRolesResponse(id, roles), err
}

func (h *UserHandler) addRole(ctx context.Context, req roleChange) (rolesResponse, error) {
	role, err := identitydomain.ParseRole(req.Role)
	if err != nil {
		return rolesResponse{}, err
	}
	roles, err := h.svc.AddRole(ctx, req.UserID, role)
	return toRolesResponse(req.UserID, roles), err
}

func (h *UserHandler) removeRole(ctx context.Context, req roleChange) (rolesResponse, error) {
	role, err := identitydomain.ParseRole(req.Role)
	if err != nil {
		return rolesResponse{}, err
	}
	roles, err := h.svc.RemoveRole(ctx, req.UserID, role)
	return toRolesResponse(req.UserID, roles), err
}

func (h *UserHandler) setRoles(ctx context.Context, req setRolesRequest) (rolesResponse, error) {
	roles, err := identitydomain.ParseRoleList(req.Roles)
	if err != nil {
		return rolesResponse{}, err
	}
	updated, err := h.svc.SetRoles(ctx, req.UserID, roles)
	return toRolesResponse(req.UserID, updated), err
}

func toUserResponse(u *domain.User) *userResponse {
	return &userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Active:    u.Active,
		Roles:     u.Roles.Strings(),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toRolesResponse(userID string, roles identitydomain.RoleSet) rolesResponse {
	return rolesResponse{UserID: userID, Roles: roles.Strings()}
}
