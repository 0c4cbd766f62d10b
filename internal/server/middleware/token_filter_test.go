package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"goaleaf-accounts/internal/auth/service"
	"goaleaf-accounts/internal/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type countingValidator struct {
	valid map[string]bool
	err   error
	calls int
}

func (v *countingValidator) Validate(_ context.Context, tok string) (bool, error) {
	v.calls++
	if v.err != nil {
		return false, v.err
	}
	return v.valid[tok], nil
}

type countingResolver struct {
	token string
	err   error
	calls int
}

func (r *countingResolver) ResolveInvalidToken(_ context.Context, _ string) (string, error) {
	r.calls++
	return r.token, r.err
}

// filterHarness wires the filter in front of a capturing handler.
type filterHarness struct {
	engine    *gin.Engine
	validator *countingValidator
	resolver  *countingResolver

	handlerCalled bool
	seenToken     string
	seenRefreshed bool
}

func newFilterHarness(t *testing.T, registry *PathRegistry, validator *countingValidator, resolver *countingResolver) *filterHarness {
	t.Helper()
	h := &filterHarness{validator: validator, resolver: resolver}
	h.engine = gin.New()
	h.engine.Use(TokenValidation(registry, validator, resolver, nil))
	capture := func(c *gin.Context) {
		h.handlerCalled = true
		h.seenToken = c.GetHeader(HeaderUserToken)
		h.seenRefreshed = c.GetBool(KeyTokenRefreshed)
		c.Status(http.StatusOK)
	}
	h.engine.GET("/api/sessions", capture)
	h.engine.POST("/api/auth/login", capture)
	h.engine.GET("/healthz", capture)
	return h
}

func (h *filterHarness) do(method, path, userToken string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if userToken != "" {
		req.Header.Set(HeaderUserToken, userToken)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

func TestTokenValidation_UncoveredPathPassesThrough(t *testing.T) {
	registry := NewPathRegistry("/api/sessions")
	h := newFilterHarness(t, registry, &countingValidator{}, &countingResolver{})

	w := h.do(http.MethodPost, "/api/auth/login", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !h.handlerCalled {
		t.Error("handler should run for uncovered paths")
	}
	if h.validator.calls != 0 || h.resolver.calls != 0 {
		t.Errorf("uncovered path must not touch validator (%d) or resolver (%d)",
			h.validator.calls, h.resolver.calls)
	}
}

func TestTokenValidation_UncoveredPathWithoutToken(t *testing.T) {
	registry := NewPathRegistry("/api/sessions", "/api/users")
	h := newFilterHarness(t, registry, &countingValidator{}, &countingResolver{})

	w := h.do(http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("request without a token to an uncovered path should succeed, status = %d", w.Code)
	}
}

func TestTokenValidation_ValidToken(t *testing.T) {
	registry := NewPathRegistry("/api/sessions")
	validator := &countingValidator{valid: map[string]bool{"good-token": true}}
	resolver := &countingResolver{}
	h := newFilterHarness(t, registry, validator, resolver)

	w := h.do(http.MethodGet, "/api/sessions", "good-token")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if h.seenToken != "good-token" {
		t.Errorf("handler saw token %q, want the original", h.seenToken)
	}
	if h.seenRefreshed {
		t.Error("refreshed flag should be false for a valid token")
	}
	if resolver.calls != 0 {
		t.Errorf("valid token must not trigger a refresh, got %d calls", resolver.calls)
	}
}

func TestTokenValidation_InvalidTokenRefreshed(t *testing.T) {
	registry := NewPathRegistry("/api/sessions")
	validator := &countingValidator{valid: map[string]bool{}}
	resolver := &countingResolver{token: "fresh-token"}
	h := newFilterHarness(t, registry, validator, resolver)

	w := h.do(http.MethodGet, "/api/sessions", "stale-token")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resolver.calls != 1 {
		t.Fatalf("resolver calls = %d, want 1", resolver.calls)
	}
	if h.seenToken != "fresh-token" {
		t.Errorf("handler saw token %q, want the rewritten header", h.seenToken)
	}
	if !h.seenRefreshed {
		t.Error("refreshed flag should be true after an in-flight refresh")
	}
}

func TestTokenValidation_RefreshFailureAborts(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"session not found", service.ErrSessionNotFound, http.StatusUnauthorized},
		{"session expired", service.ErrSessionExpired, http.StatusUnauthorized},
		{"refresh failed", service.ErrTokenRefreshFailed, http.StatusBadGateway},
		{"repository failure", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			registry := NewPathRegistry("/api/sessions")
			resolver := &countingResolver{err: tc.err}
			h := newFilterHarness(t, registry, &countingValidator{}, resolver)

			w := h.do(http.MethodGet, "/api/sessions", "stale-token")
			if w.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if h.handlerCalled {
				t.Error("handler must not run when the refresh fails")
			}
		})
	}
}

func TestTokenValidation_EmptyTokenOnCoveredPath(t *testing.T) {
	registry := NewPathRegistry("/api/sessions")
	validator := &countingValidator{err: token.ErrEmptyToken}
	h := newFilterHarness(t, registry, validator, &countingResolver{})

	w := h.do(http.MethodGet, "/api/sessions", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if h.handlerCalled {
		t.Error("handler must not run without a token on a covered path")
	}
}

func TestTokenValidation_MalformedTokenOnCoveredPath(t *testing.T) {
	registry := NewPathRegistry("/api/sessions")
	validator := &countingValidator{err: token.ErrDecode}
	h := newFilterHarness(t, registry, validator, &countingResolver{})

	w := h.do(http.MethodGet, "/api/sessions", "garbage")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestPathRegistry_Covers(t *testing.T) {
	registry := NewPathRegistry("/api/sessions", "/api/users")
	registry.Add("/api/account")

	testCases := []struct {
		path string
		want bool
	}{
		{"/api/sessions", true},
		{"/api/sessions/abc", true},
		{"/api/users/me", true},
		{"/api/account/password", true},
		{"/api/auth/login", false},
		{"/healthz", false},
		{"/", false},
	}
	for _, tc := range testCases {
		if got := registry.Covers(tc.path); got != tc.want {
			t.Errorf("Covers(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestPathRegistry_EmptyRegistryCoversNothing(t *testing.T) {
	registry := NewPathRegistry()
	if registry.Covers("/api/sessions") {
		t.Error("empty registry should cover nothing")
	}
}
