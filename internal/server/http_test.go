package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"goaleaf-accounts/internal/auth/service"
	"goaleaf-accounts/internal/keycloak"
	"goaleaf-accounts/internal/server/middleware"
	"goaleaf-accounts/internal/token"
	userdomain "goaleaf-accounts/internal/user/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubValidator struct {
	valid map[string]bool
}

func (v *stubValidator) Validate(_ context.Context, tok string) (bool, error) {
	if tok == "" {
		return false, token.ErrEmptyToken
	}
	return v.valid[tok], nil
}

type stubResolver struct {
	token string
	err   error
}

func (r *stubResolver) ResolveInvalidToken(context.Context, string) (string, error) {
	return r.token, r.err
}

// stubAccount records the token each operation received.
type stubAccount struct {
	lastToken string
}

func (s *stubAccount) Register(context.Context, service.RegisterParams) (*userdomain.Profile, error) {
	return &userdomain.Profile{UserID: "user-1", Username: "jdoe", Email: "jdoe@example.com"}, nil
}

func (s *stubAccount) Login(context.Context, service.LoginParams) (*keycloak.TokenSet, error) {
	return &keycloak.TokenSet{AccessToken: "access-1", RefreshToken: "refresh-1"}, nil
}

func (s *stubAccount) Logout(_ context.Context, tok string) error {
	s.lastToken = tok
	return nil
}

func (s *stubAccount) LogoutAll(_ context.Context, tok string) error {
	s.lastToken = tok
	return nil
}

func (s *stubAccount) Sessions(_ context.Context, tok string) ([]service.SessionInfo, error) {
	s.lastToken = tok
	return []service.SessionInfo{{SessionID: "sess-1", StartedAt: time.Now()}}, nil
}

func (s *stubAccount) ResetPassword(_ context.Context, tok, _ string) error {
	s.lastToken = tok
	return nil
}

func (s *stubAccount) ChangePassword(_ context.Context, tok, _ string) error {
	s.lastToken = tok
	return nil
}

func (s *stubAccount) RequestEmailConfirmation(_ context.Context, tok string) error {
	s.lastToken = tok
	return nil
}

func (s *stubAccount) Profile(_ context.Context, tok string) (*userdomain.Profile, error) {
	s.lastToken = tok
	return &userdomain.Profile{UserID: "user-1", Username: "jdoe", Email: "jdoe@example.com"}, nil
}

func (s *stubAccount) UpdateProfile(_ context.Context, tok string, _ service.UpdateProfileParams) (*userdomain.Profile, error) {
	s.lastToken = tok
	return &userdomain.Profile{UserID: "user-1", Username: "jdoe", Email: "jdoe@example.com"}, nil
}

func newTestRouter(account *stubAccount, validator *stubValidator, resolver *stubResolver) *gin.Engine {
	return NewRouter(Deps{
		Account:   account,
		Validator: validator,
		Resolver:  resolver,
		Registry:  middleware.NewPathRegistry("/api/sessions", "/api/users", "/api/account", "/api/auth/logout"),
	})
}

func TestRouter_Healthz(t *testing.T) {
	router := newTestRouter(&stubAccount{}, &stubValidator{}, &stubResolver{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestRouter_LoginIsPublic(t *testing.T) {
	router := newTestRouter(&stubAccount{}, &stubValidator{}, &stubResolver{})

	body := strings.NewReader(`{"username":"jdoe","password":"hunter2"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestRouter_LoginRejectsBadBody(t *testing.T) {
	router := newTestRouter(&stubAccount{}, &stubValidator{}, &stubResolver{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRouter_ProtectedRouteRequiresToken(t *testing.T) {
	router := newTestRouter(&stubAccount{}, &stubValidator{}, &stubResolver{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRouter_ValidTokenNoEcho(t *testing.T) {
	account := &stubAccount{}
	router := newTestRouter(account, &stubValidator{valid: map[string]bool{"good": true}}, &stubResolver{})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set(middleware.HeaderUserToken, "good")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get(middleware.HeaderNewUserToken); got != "" {
		t.Errorf("New-User-Token = %q, want empty for a valid token", got)
	}
	if account.lastToken != "good" {
		t.Errorf("service saw token %q", account.lastToken)
	}
}

func TestRouter_RefreshedTokenIsEchoed(t *testing.T) {
	account := &stubAccount{}
	router := newTestRouter(account, &stubValidator{valid: map[string]bool{}}, &stubResolver{token: "fresh"})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set(middleware.HeaderUserToken, "stale")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get(middleware.HeaderNewUserToken); got != "fresh" {
		t.Errorf("New-User-Token = %q, want the refreshed token", got)
	}
	if account.lastToken != "fresh" {
		t.Errorf("service saw token %q, want the refreshed one", account.lastToken)
	}
}

func TestRouter_LogoutIsProtected(t *testing.T) {
	router := newTestRouter(&stubAccount{}, &stubValidator{}, &stubResolver{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
