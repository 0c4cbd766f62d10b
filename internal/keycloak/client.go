// Package keycloak is the HTTP boundary to the external identity provider.
// It covers the OpenID Connect token endpoints (password grant, refresh grant,
// client credentials, introspection) and the admin REST calls this service
// needs (user registration, session listing and termination, credential reset,
// verification email).
package keycloak

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"goaleaf-accounts/internal/config"
)

// Sentinel errors; callers match on these and read the wrapped provider description.
var (
	// ErrTokenRefresh is returned when the refresh-token grant fails for any
	// transport or provider reason.
	ErrTokenRefresh = errors.New("token refresh request failed")
	// ErrActionRequest is returned when a non-refresh Keycloak call fails.
	// These calls fail loud; only the online validation strategy downgrades
	// introspection failures to an inactive result.
	ErrActionRequest = errors.New("keycloak action request failed")
)

// TokenSet mirrors Keycloak's token endpoint response.
type TokenSet struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	NotBeforePolicy  int    `json:"not-before-policy"`
	SessionState     string `json:"session_state"`
	Scope            string `json:"scope"`
}

// CredentialRepresentation is a Keycloak credential payload for user creation
// and password reset.
type CredentialRepresentation struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// UserRepresentation is the admin API payload for creating and reading users.
type UserRepresentation struct {
	ID            string                     `json:"id,omitempty"`
	Username      string                     `json:"username"`
	Email         string                     `json:"email"`
	FirstName     string                     `json:"firstName,omitempty"`
	LastName      string                     `json:"lastName,omitempty"`
	Enabled       bool                       `json:"enabled"`
	EmailVerified bool                       `json:"emailVerified"`
	Credentials   []CredentialRepresentation `json:"credentials,omitempty"`
}

// SessionRepresentation is a Keycloak user-session entry from the admin API.
type SessionRepresentation struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	UserID     string `json:"userId"`
	IPAddress  string `json:"ipAddress"`
	Start      int64  `json:"start"`
	LastAccess int64  `json:"lastAccess"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorMessage     string `json:"errorMessage"`
}

func (e *errorResponse) description() string {
	if e.ErrorDescription != "" {
		return e.ErrorDescription
	}
	if e.ErrorMessage != "" {
		return e.ErrorMessage
	}
	return e.Error
}

// Client performs blocking HTTP calls against Keycloak. All calls run to
// completion or failure within the configured client timeout.
type Client struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	grantType    string
	scope        string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient returns a Keycloak client configured from cfg.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.KeycloakBaseURL, "/"),
		realm:        cfg.KeycloakRealm,
		clientID:     cfg.KeycloakClientID,
		clientSecret: cfg.KeycloakClientSecret,
		grantType:    cfg.KeycloakClientGrantType,
		scope:        cfg.KeycloakScope,
		httpClient:   &http.Client{Timeout: cfg.Timeout()},
		logger:       logger,
	}
}

func (c *Client) tokenEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.baseURL, c.realm)
}

func (c *Client) introspectEndpoint() string {
	return c.tokenEndpoint() + "/introspect"
}

func (c *Client) adminEndpoint(pathFormat string, args ...any) string {
	return fmt.Sprintf("%s/admin/realms/%s", c.baseURL, c.realm) + fmt.Sprintf(pathFormat, args...)
}

// Authenticate performs the password grant for the given user credentials.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*TokenSet, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"username":      {username},
		"password":      {password},
	}
	return c.requestTokenSet(ctx, form, ErrActionRequest)
}

// RefreshToken exchanges the stored refresh token for a new token set.
// Any transport or provider failure is wrapped into ErrTokenRefresh.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {refreshToken},
	}
	return c.requestTokenSet(ctx, form, ErrTokenRefresh)
}

// ClientAccessToken authenticates the service account and returns a
// "Bearer "-prefixed access token for admin API calls.
func (c *Client) ClientAccessToken(ctx context.Context) (string, error) {
	c.logger.Debug("requesting client access token", "realm", c.realm)
	form := url.Values{
		"grant_type":    {c.grantType},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"scope":         {c.scope},
	}
	set, err := c.requestTokenSet(ctx, form, ErrActionRequest)
	if err != nil {
		return "", err
	}
	return "Bearer " + set.AccessToken, nil
}

func (c *Client) requestTokenSet(ctx context.Context, form url.Values, sentinel error) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.providerError(sentinel, resp)
	}
	var set TokenSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", sentinel, err)
	}
	return &set, nil
}

// Introspect asks Keycloak whether the token is currently active.
// Transport and provider failures are surfaced as ErrActionRequest; the online
// validation strategy is the one call site that downgrades them to inactive.
func (c *Client) Introspect(ctx context.Context, token string) (bool, error) {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.introspectEndpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrActionRequest, err)
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrActionRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, c.providerError(ErrActionRequest, resp)
	}
	var body struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("%w: decoding response: %v", ErrActionRequest, err)
	}
	return body.Active, nil
}

// DeleteSession removes the given session on the Keycloak side.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.adminRequest(ctx, http.MethodDelete, c.adminEndpoint("/sessions/%s", sessionID), nil)
}

// RegisterUser creates the user in Keycloak via the admin API.
func (c *Client) RegisterUser(ctx context.Context, user UserRepresentation) error {
	return c.adminRequest(ctx, http.MethodPost, c.adminEndpoint("/users"), user)
}

// FindUserByUsername looks up a user by exact username. Returns nil when no
// user matches.
func (c *Client) FindUserByUsername(ctx context.Context, username string) (*UserRepresentation, error) {
	clientToken, err := c.ClientAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	endpoint := c.adminEndpoint("/users") + "?exact=true&username=" + url.QueryEscape(username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrActionRequest, err)
	}
	req.Header.Set("Authorization", clientToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrActionRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.providerError(ErrActionRequest, resp)
	}
	var users []UserRepresentation
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrActionRequest, err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

// ListUserSessions returns the provider's view of the user's active sessions.
func (c *Client) ListUserSessions(ctx context.Context, userID string) ([]SessionRepresentation, error) {
	clientToken, err := c.ClientAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.adminEndpoint("/users/%s/sessions", userID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrActionRequest, err)
	}
	req.Header.Set("Authorization", clientToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrActionRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.providerError(ErrActionRequest, resp)
	}
	var sessions []SessionRepresentation
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrActionRequest, err)
	}
	return sessions, nil
}

// TerminateAllSessions logs the user out of every Keycloak session.
func (c *Client) TerminateAllSessions(ctx context.Context, userID string) error {
	return c.adminRequest(ctx, http.MethodPost, c.adminEndpoint("/users/%s/logout", userID), nil)
}

// ResetPassword replaces the user's password credential.
func (c *Client) ResetPassword(ctx context.Context, userID, newPassword string, temporary bool) error {
	credential := CredentialRepresentation{Type: "password", Value: newPassword, Temporary: temporary}
	return c.adminRequest(ctx, http.MethodPut, c.adminEndpoint("/users/%s/reset-password", userID), credential)
}

// SendVerificationEmail triggers Keycloak's email confirmation flow for the user.
func (c *Client) SendVerificationEmail(ctx context.Context, userID string) error {
	return c.adminRequest(ctx, http.MethodPut, c.adminEndpoint("/users/%s/send-verify-email", userID), nil)
}

// adminRequest performs an authenticated admin API call. A fresh service
// account token is obtained per call; Keycloak rates these cheaply and the
// service avoids caching credentials it does not own.
func (c *Client) adminRequest(ctx context.Context, method, endpoint string, body any) error {
	clientToken, err := c.ClientAccessToken(ctx)
	if err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrActionRequest, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrActionRequest, err)
	}
	req.Header.Set("Authorization", clientToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrActionRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.providerError(ErrActionRequest, resp)
	}
	return nil
}

func (c *Client) providerError(sentinel error, resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.description() != "" {
		return fmt.Errorf("%w: status=%d: %s", sentinel, resp.StatusCode, body.description())
	}
	return fmt.Errorf("%w: status=%d body=%s", sentinel, resp.StatusCode, string(raw))
}
