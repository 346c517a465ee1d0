package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"digicheese/backend/internal/identity/domain"
	"digicheese/backend/internal/identity/service"
	"digicheese/backend/internal/platform/httpx"
	"digicheese/backend/internal/platform/rbac"
	"digicheese/backend/internal/revocation"
	"digicheese/backend/internal/security"
	"digicheese/backend/internal/server/middleware"
	userdomain "digicheese/backend/internal/user/domain"
)

type memCredStore struct {
	byName map[string]*userdomain.Credential
}

func (r *memCredStore) GetCredentialByUsername(_ context.Context, username string) (*userdomain.Credential, error) {
	c, ok := r.byName[username]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memCredStore) UpdatePasswordHash(context.Context, string, string) error { return nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hasher := security.NewTestHasher()
	hash, err := hasher.Hash("Correct-Pass1!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	creds := &memCredStore{byName: map[string]*userdomain.Credential{
		"alice": {UserID: "user-alice", PasswordHash: hash, Active: true, Roles: domain.NewRoleSet(domain.RoleAdmin)},
	}}
	codec := security.NewTestCodec()
	revoked := revocation.NewMemoryStore()
	svc := service.NewAuthService(creds, hasher, codec, revoked)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.NewResolver(codec, revoked, middleware.WithLenientPaths(PathLogin, PathRefresh, PathLogout)).Handler())
	NewAuthHandler(svc, true).Register(r, rbac.IntersectionDecider{})
	return r
}

type session struct {
	access  string
	refresh string
}

func do(r *gin.Engine, method, path string, body any, s *session) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s != nil {
		if s.access != "" {
			req.Header.Set("Authorization", "Bearer "+s.access)
		}
		if s.refresh != "" {
			req.AddCookie(&http.Cookie{Name: middleware.RefreshCookieName, Value: s.refresh})
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func refreshCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.RefreshCookieName {
			return c
		}
	}
	t.Fatal("response has no refresh_token cookie")
	return nil
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httpx.Error {
	t.Helper()
	var e httpx.Error
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return e
}

func login(t *testing.T, r *gin.Engine) *session {
	t.Helper()
	w := do(r, http.MethodPost, PathLogin, map[string]string{"username": "alice", "password": "Correct-Pass1!"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var resp tokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	return &session{access: resp.AccessToken, refresh: refreshCookie(t, w).Value}
}

func TestLogin_SetsTokenAndCookie(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodPost, PathLogin, map[string]string{"username": "alice", "password": "Correct-Pass1!"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	var resp tokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("access_token is empty")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want %q", resp.TokenType, "Bearer")
	}
	if resp.ExpiresIn != 3600 {
		t.Errorf("expires_in = %d, want 3600", resp.ExpiresIn)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}

	c := refreshCookie(t, w)
	if c.Value == "" {
		t.Error("cookie value is empty")
	}
	if !c.HttpOnly || !c.Secure {
		t.Errorf("HttpOnly=%v Secure=%v, want both true", c.HttpOnly, c.Secure)
	}
	if c.SameSite != http.SameSiteStrictMode {
		t.Errorf("SameSite = %v, want Strict", c.SameSite)
	}
	if c.Path != "/" {
		t.Errorf("Path = %q, want /", c.Path)
	}
	if c.MaxAge != 86400 {
		t.Errorf("MaxAge = %d, want 86400", c.MaxAge)
	}
}

func TestLogin_Failures(t *testing.T) {
	testCases := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"wrong password", map[string]string{"username": "alice", "password": "nope"}, http.StatusUnauthorized, httpx.CodeInvalidCredentials},
		{"unknown user", map[string]string{"username": "mallory", "password": "Correct-Pass1!"}, http.StatusUnauthorized, httpx.CodeInvalidCredentials},
		{"missing password", map[string]string{"username": "alice"}, http.StatusBadRequest, httpx.CodeBadRequest},
		{"not json", "just a string", http.StatusBadRequest, httpx.CodeBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(t)
			w := do(r, http.MethodPost, PathLogin, tc.body, nil)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if e := decodeError(t, w); e.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", e.Code, tc.wantCode)
			}
			if tc.wantStatus == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 should carry WWW-Authenticate")
			}
			for _, c := range w.Result().Cookies() {
				if c.Name == middleware.RefreshCookieName {
					t.Error("failed login must not set a refresh cookie")
				}
			}
		})
	}
}

func TestRefresh_RotatesOnce(t *testing.T) {
	r := newTestRouter(t)
	s := login(t, r)

	w := do(r, http.MethodPost, PathRefresh, nil, &session{refresh: s.refresh})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	next := refreshCookie(t, w)
	if next.Value == s.refresh {
		t.Error("refresh should set a new cookie value")
	}

	w = do(r, http.MethodPost, PathRefresh, nil, &session{refresh: s.refresh})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("second refresh status = %d, want 401", w.Code)
	}
	if e := decodeError(t, w); e.Code != httpx.CodeRefreshRejected {
		t.Errorf("code = %q, want %q", e.Code, httpx.CodeRefreshRejected)
	}
	if c := refreshCookie(t, w); c.MaxAge >= 0 {
		t.Errorf("rejected refresh should clear the cookie, MaxAge = %d", c.MaxAge)
	}
}

func TestRefresh_NoCookie(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodPost, PathRefresh, nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestMe(t *testing.T) {
	r := newTestRouter(t)
	s := login(t, r)

	w := do(r, http.MethodGet, PathMe, nil, s)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var me meResponse
	if err := json.Unmarshal(w.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if me.SubjectID != "user-alice" {
		t.Errorf("subject_id = %q, want %q", me.SubjectID, "user-alice")
	}
	if len(me.Roles) != 1 || me.Roles[0] != "ADMIN" {
		t.Errorf("roles = %v, want [ADMIN]", me.Roles)
	}

	for name, partial := range map[string]*session{
		"no tokens":   nil,
		"bearer only": {access: s.access},
		"cookie only": {refresh: s.refresh},
	} {
		w := do(r, http.MethodGet, PathMe, nil, partial)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", name, w.Code)
		}
	}
}

func TestLogoutThenRefresh(t *testing.T) {
	r := newTestRouter(t)
	s := login(t, r)

	w := do(r, http.MethodPost, PathLogout, nil, s)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204 (body %s)", w.Code, w.Body.String())
	}
	if c := refreshCookie(t, w); c.MaxAge >= 0 || c.Value != "" {
		t.Errorf("logout cookie = %q MaxAge %d, want cleared", c.Value, c.MaxAge)
	}

	w = do(r, http.MethodPost, PathRefresh, nil, &session{refresh: s.refresh})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout status = %d, want 401", w.Code)
	}
	w = do(r, http.MethodGet, PathMe, nil, s)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("me after logout status = %d, want 401", w.Code)
	}
}

func TestLogout_CookieOnly(t *testing.T) {
	r := newTestRouter(t)
	s := login(t, r)

	w := do(r, http.MethodPost, PathLogout, nil, &session{refresh: s.refresh})
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	w = do(r, http.MethodPost, PathRefresh, nil, &session{refresh: s.refresh})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("refresh after cookie logout status = %d, want 401", w.Code)
	}
}

func TestLogout_Anonymous(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodPost, PathLogout, nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestLogout_RotatedCookie(t *testing.T) {
	r := newTestRouter(t)
	s := login(t, r)

	w := do(r, http.MethodPost, PathRefresh, nil, &session{refresh: s.refresh})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, want 200", w.Code)
	}
	w = do(r, http.MethodPost, PathLogout, nil, &session{refresh: s.refresh})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("logout with rotated cookie status = %d, want 401", w.Code)
	}
	if e := decodeError(t, w); e.Code != httpx.CodeUnauthenticated {
		t.Errorf("code = %q, want %q", e.Code, httpx.CodeUnauthenticated)
	}
	if c := refreshCookie(t, w); c.MaxAge >= 0 {
		t.Errorf("failed logout should still clear the cookie, MaxAge = %d", c.MaxAge)
	}
}
