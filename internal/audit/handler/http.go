// Package handler serves the ADMIN-only auth audit log under /admin/audit.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"digicheese/backend/internal/audit/domain"
	auditrepo "digicheese/backend/internal/audit/repository"
	identitydomain "digicheese/backend/internal/identity/domain"
	"digicheese/backend/internal/platform/httpx"
	"digicheese/backend/internal/platform/rbac"
	"digicheese/backend/internal/platform/validation"
)

// PathAudit lists audit entries.
const PathAudit = "/admin/audit"

type listRequest struct {
	SubjectID string `form:"subject_id" json:"subject_id"`
	Type      string `form:"type" json:"type"`
	Outcome   string `form:"outcome" json:"outcome" validate:"omitempty,oneof=success failure"`
	Limit     int    `form:"limit" json:"limit" validate:"min=0,max=500"`
	Offset    int    `form:"offset" json:"offset" validate:"min=0"`
}

type entryResponse struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	SubjectID  string    `json:"subject_id,omitempty"`
	Username   string    `json:"username,omitempty"`
	ClientIP   string    `json:"client_ip,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type listResponse struct {
	Entries []entryResponse `json:"entries"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// AuditHandler exposes the audit repository read-only.
type AuditHandler struct {
	repo auditrepo.Repository
}

// NewAuditHandler returns an AuditHandler.
func NewAuditHandler(repo auditrepo.Repository) *AuditHandler {
	return &AuditHandler{repo: repo}
}

// Register mounts GET /admin/audit on r, restricted to ADMIN through d. The guard runs
// before the query is parsed.
func (h *AuditHandler) Register(r gin.IRouter, d rbac.Decider) {
	admin := identitydomain.NewRoleSet(identitydomain.RoleAdmin)
	r.GET(PathAudit, rbac.Middleware(d, admin), rbac.Serve(bindList, rbac.Protect(d, admin, h.list), http.StatusOK))
}

func bindList(c *gin.Context) (listRequest, error) {
	var req listRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		return req, httpx.Error{Status: http.StatusBadRequest, Code: httpx.CodeBadRequest, Message: "invalid query parameters"}
	}
	return req, nil
}

func (h *AuditHandler) list(ctx context.Context, req listRequest) (listResponse, error) {
	if err := validation.Validate(req); err != nil {
		return listResponse{}, err
	}
	f := domain.Filter{
		SubjectID: req.SubjectID,
		EventType: req.Type,
		Outcome:   req.Outcome,
		Limit:     req.Limit,
		Offset:    req.Offset,
	}.Normalize()
	entries, err := h.repo.List(ctx, f)
	if err != nil {
		return listResponse{}, err
	}
	resp := listResponse{Entries: make([]entryResponse, 0, len(entries)), Limit: f.Limit, Offset: f.Offset}
	for _, a := range entries {
		resp.Entries = append(resp.Entries, entryResponse{
			ID:         a.ID,
			Type:       a.EventType,
			Outcome:    a.Outcome,
			Reason:     a.Reason,
			SubjectID:  a.SubjectID,
			Username:   a.Username,
			ClientIP:   a.ClientIP,
			RequestID:  a.RequestID,
			OccurredAt: a.OccurredAt,
		})
	}
	return resp, nil
}
