package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/gin-gonic/gin"

	identitydomain "digicheese/backend/internal/identity/domain"
	"digicheese/backend/internal/platform/httpx"
	"digicheese/backend/internal/platform/rbac"
	"digicheese/backend/internal/security"
	"digicheese/backend/internal/server/middleware"
	"digicheese/backend/internal/user/repository"
	"digicheese/backend/internal/user/service"
)

// newTestRouter injects an identity holding roles; no roles means anonymous.
func newTestRouter(t *testing.T, roles ...identitydomain.Role) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if len(roles) > 0 {
		id := &identitydomain.Identity{SubjectID: "caller", Roles: identitydomain.NewRoleSet(roles...)}
		r.Use(func(c *gin.Context) {
			c.Request = c.Request.WithContext(middleware.WithIdentity(c.Request.Context(), id))
			c.Next()
		})
	}
	svc := service.NewUserService(repository.NewMemoryRepository(), security.NewTestHasher())
	NewUserHandler(svc).Register(r, rbac.IntersectionDecider{})
	return r
}

func do(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createUser(t *testing.T, r *gin.Engine, username string, roles ...string) userResponse {
	t.Helper()
	w := do(r, http.MethodPost, "/admin/users", map[string]any{
		"username": username, "password": "Correct-Pass1!", "roles": roles,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	var u userResponse
	if err := json.Unmarshal(w.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return u
}

func decodeRoles(t *testing.T, w *httptest.ResponseRecorder) []string {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var resp rolesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.Roles
}

func TestAdminUsers_Lifecycle(t *testing.T) {
	r := newTestRouter(t, identitydomain.RoleAdmin)

	u := createUser(t, r, "alice", "admin", "OP_STOCK")
	if u.ID == "" || u.Username != "alice" || !u.Active {
		t.Errorf("created = %+v", u)
	}
	if want := []string{"ADMIN", "OP_STOCK"}; !reflect.DeepEqual(u.Roles, want) {
		t.Errorf("roles = %v, want %v", u.Roles, want)
	}

	w := do(r, http.MethodGet, "/admin/users/"+u.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Error("user response must not expose the password hash")
	}

	got := decodeRoles(t, do(r, http.MethodPost, "/admin/users/"+u.ID+"/roles/op_colis", nil))
	if want := []string{"ADMIN", "OP_COLIS", "OP_STOCK"}; !reflect.DeepEqual(got, want) {
		t.Errorf("after add = %v, want %v", got, want)
	}
	got = decodeRoles(t, do(r, http.MethodDelete, "/admin/users/"+u.ID+"/roles/ADMIN", nil))
	if want := []string{"OP_COLIS", "OP_STOCK"}; !reflect.DeepEqual(got, want) {
		t.Errorf("after remove = %v, want %v", got, want)
	}
	got = decodeRoles(t, do(r, http.MethodPatch, "/admin/users/"+u.ID+"/roles?roles=ADMIN,OP_STOCK", nil))
	if want := []string{"ADMIN", "OP_STOCK"}; !reflect.DeepEqual(got, want) {
		t.Errorf("after replace = %v, want %v", got, want)
	}
	got = decodeRoles(t, do(r, http.MethodGet, "/admin/users/"+u.ID+"/roles", nil))
	if want := []string{"ADMIN", "OP_STOCK"}; !reflect.DeepEqual(got, want) {
		t.Errorf("listed = %v, want %v", got, want)
	}
}

func TestAdminUsers_Errors(t *testing.T) {
	r := newTestRouter(t, identitydomain.RoleAdmin)
	u := createUser(t, r, "alice", "ADMIN")

	testCases := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"unknown role in body", http.MethodPost, "/admin/users", map[string]any{"username": "bob", "password": "Correct-Pass1!", "roles": []string{"CHEF"}},
			http.StatusBadRequest, httpx.CodeValidation},
		{"short password", http.MethodPost, "/admin/users", map[string]any{"username": "bob", "password": "short", "roles": []string{"ADMIN"}},
			http.StatusBadRequest, httpx.CodeValidation},
		{"whitespace username", http.MethodPost, "/admin/users", map[string]any{"username": "b ob", "password": "Correct-Pass1!", "roles": []string{"ADMIN"}},
			http.StatusBadRequest, httpx.CodeValidation},
		{"duplicate username", http.MethodPost, "/admin/users", map[string]any{"username": "alice", "password": "Correct-Pass1!", "roles": []string{"ADMIN"}},
			http.StatusConflict, httpx.CodeConflict},
		{"bad json", http.MethodPost, "/admin/users", "nope", http.StatusBadRequest, httpx.CodeBadRequest},
		{"unknown user", http.MethodGet, "/admin/users/missing", nil, http.StatusNotFound, httpx.CodeNotFound},
		{"unknown user roles", http.MethodPost, "/admin/users/missing/roles/ADMIN", nil, http.StatusNotFound, httpx.CodeNotFound},
		{"unknown role in path", http.MethodPost, "/admin/users/" + u.ID + "/roles/CHEF", nil, http.StatusBadRequest, httpx.CodeValidation},
		{"replace without roles", http.MethodPatch, "/admin/users/" + u.ID + "/roles", nil, http.StatusBadRequest, httpx.CodeBadRequest},
		{"replace with unknown role", http.MethodPatch, "/admin/users/" + u.ID + "/roles?roles=ADMIN,CHEF", nil, http.StatusBadRequest, httpx.CodeValidation},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, tc.method, tc.path, tc.body)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.wantStatus, w.Body.String())
			}
			var e httpx.Error
			if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if e.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", e.Code, tc.wantCode)
			}
		})
	}
}

func TestAdminUsers_Guarded(t *testing.T) {
	requests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, "/admin/users", map[string]any{"username": "bob", "password": "Correct-Pass1!", "roles": []string{"ADMIN"}}},
		{http.MethodGet, "/admin/users/u1", nil},
		{http.MethodGet, "/admin/users/u1/roles", nil},
		{http.MethodPost, "/admin/users/u1/roles/ADMIN", nil},
		{http.MethodDelete, "/admin/users/u1/roles/ADMIN", nil},
		{http.MethodPatch, "/admin/users/u1/roles?roles=ADMIN", nil},
	}
	callers := []struct {
		name       string
		roles      []identitydomain.Role
		wantStatus int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"operator", []identitydomain.Role{identitydomain.RoleOpStock, identitydomain.RoleOpColis}, http.StatusForbidden},
	}
	for _, caller := range callers {
		r := newTestRouter(t, caller.roles...)
		for _, req := range requests {
			w := do(r, req.method, req.path, req.body)
			if w.Code != caller.wantStatus {
				t.Errorf("%s %s %s: status = %d, want %d", caller.name, req.method, req.path, w.Code, caller.wantStatus)
			}
		}
	}
}

func TestAdminUsers_GuardRunsBeforeDecode(t *testing.T) {
	testCases := []struct {
		name       string
		roles      []identitydomain.Role
		wantStatus int
		wantCode   string
	}{
		{"anonymous", nil, http.StatusUnauthorized, httpx.CodeUnauthenticated},
		{"operator", []identitydomain.Role{identitydomain.RoleOpStock}, http.StatusForbidden, httpx.CodeForbidden},
		{"admin", []identitydomain.Role{identitydomain.RoleAdmin}, http.StatusBadRequest, httpx.CodeBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(t, tc.roles...)
			req := httptest.NewRequest(http.MethodPost, "/admin/users", bytes.NewBufferString(`{"username":`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.wantStatus, w.Body.String())
			}
			var e httpx.Error
			if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if e.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", e.Code, tc.wantCode)
			}
		})
	}
}
