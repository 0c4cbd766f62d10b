package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"goaleaf-accounts/internal/auth/service"
	"goaleaf-accounts/internal/keycloak"
	"goaleaf-accounts/internal/server/middleware"
	userdomain "goaleaf-accounts/internal/user/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// errAccount returns the scripted error from every operation.
type errAccount struct {
	err error
}

func (s *errAccount) Register(context.Context, service.RegisterParams) (*userdomain.Profile, error) {
	return nil, s.err
}

func (s *errAccount) Login(context.Context, service.LoginParams) (*keycloak.TokenSet, error) {
	return nil, s.err
}

func (s *errAccount) Logout(context.Context, string) error    { return s.err }
func (s *errAccount) LogoutAll(context.Context, string) error { return s.err }

func (s *errAccount) Sessions(context.Context, string) ([]service.SessionInfo, error) {
	return nil, s.err
}

func (s *errAccount) ResetPassword(context.Context, string, string) error  { return s.err }
func (s *errAccount) ChangePassword(context.Context, string, string) error { return s.err }
func (s *errAccount) RequestEmailConfirmation(context.Context, string) error {
	return s.err
}

func (s *errAccount) Profile(context.Context, string) (*userdomain.Profile, error) {
	return nil, s.err
}

func (s *errAccount) UpdateProfile(context.Context, string, service.UpdateProfileParams) (*userdomain.Profile, error) {
	return nil, s.err
}

func serve(t *testing.T, svc AccountService, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	engine := gin.New()
	account := NewAccount(svc, nil)
	engine.POST("/api/auth/register", account.Register)
	engine.POST("/api/auth/login", account.Login)
	engine.GET("/api/users/me", account.Me)
	engine.GET("/api/sessions", account.Sessions)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderUserToken, "some-token")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestErrorTranslation(t *testing.T) {
	registerBody := `{"username":"jdoe","email":"jdoe@example.com","password":"hunter2hunter2"}`
	loginBody := `{"username":"jdoe","password":"hunter2"}`

	testCases := []struct {
		name       string
		err        error
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"username taken", service.ErrUsernameTaken, http.MethodPost, "/api/auth/register", registerBody, http.StatusConflict},
		{"invalid credentials", service.ErrInvalidCredentials, http.MethodPost, "/api/auth/login", loginBody, http.StatusUnauthorized},
		{"profile missing", service.ErrProfileNotFound, http.MethodGet, "/api/users/me", "", http.StatusNotFound},
		{"provider unreachable", keycloak.ErrActionRequest, http.MethodGet, "/api/sessions", "", http.StatusBadGateway},
		{"storage failure", context.DeadlineExceeded, http.MethodGet, "/api/sessions", "", http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(t, &errAccount{err: tc.err}, tc.method, tc.path, tc.body)
			if w.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tc.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRegister_ValidatesBody(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"missing username", `{"email":"a@b.c","password":"hunter2hunter2"}`},
		{"bad email", `{"username":"jdoe","email":"nope","password":"hunter2hunter2"}`},
		{"short password", `{"username":"jdoe","email":"a@b.c","password":"short"}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(t, &errAccount{}, http.MethodPost, "/api/auth/register", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}
