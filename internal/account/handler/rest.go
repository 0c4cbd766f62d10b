// Package handler exposes the account REST surface. Routes behind the token
// validation filter read the caller's access token from the User-Token request
// header, which the filter guarantees is valid by the time a handler runs.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"goaleaf-accounts/internal/auth/service"
	"goaleaf-accounts/internal/keycloak"
	"goaleaf-accounts/internal/server/middleware"
	"goaleaf-accounts/internal/token"
	userdomain "goaleaf-accounts/internal/user/domain"
)

// AccountService is the service surface the REST handlers depend on.
type AccountService interface {
	Register(ctx context.Context, p service.RegisterParams) (*userdomain.Profile, error)
	Login(ctx context.Context, p service.LoginParams) (*keycloak.TokenSet, error)
	Logout(ctx context.Context, accessToken string) error
	LogoutAll(ctx context.Context, accessToken string) error
	Sessions(ctx context.Context, accessToken string) ([]service.SessionInfo, error)
	ResetPassword(ctx context.Context, accessToken, newPassword string) error
	ChangePassword(ctx context.Context, accessToken, newPassword string) error
	RequestEmailConfirmation(ctx context.Context, accessToken string) error
	Profile(ctx context.Context, accessToken string) (*userdomain.Profile, error)
	UpdateProfile(ctx context.Context, accessToken string, p service.UpdateProfileParams) (*userdomain.Profile, error)
}

// Account holds the REST handlers for account operations.
type Account struct {
	svc    AccountService
	logger *slog.Logger
}

// NewAccount returns REST handlers backed by the given service.
func NewAccount(svc AccountService, logger *slog.Logger) *Account {
	if logger == nil {
		logger = slog.Default()
	}
	return &Account{svc: svc, logger: logger}
}

type registerRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Location string `json:"location"`
	Device   string `json:"device"`
}

type passwordRequest struct {
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

type updateProfileRequest struct {
	Email     *string `json:"email" binding:"omitempty,email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

type profileResponse struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toProfileResponse(p *userdomain.Profile) profileResponse {
	return profileResponse{
		UserID:    p.UserID,
		Username:  p.Username,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	TokenType        string `json:"token_type"`
	SessionState     string `json:"session_state"`
	Scope            string `json:"scope"`
}

type sessionResponse struct {
	SessionID  string    `json:"session_id"`
	IPAddress  string    `json:"ip_address,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	LastAccess time.Time `json:"last_access"`
	Location   string    `json:"location,omitempty"`
	Device     string    `json:"device,omitempty"`
}

// Register handles POST /api/auth/register.
func (h *Account) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile, err := h.svc.Register(c.Request.Context(), service.RegisterParams{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toProfileResponse(profile))
}

// Login handles POST /api/auth/login.
func (h *Account) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	set, err := h.svc.Login(c.Request.Context(), service.LoginParams{
		Username: req.Username,
		Password: req.Password,
		Location: req.Location,
		Device:   req.Device,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:      set.AccessToken,
		ExpiresIn:        set.ExpiresIn,
		RefreshToken:     set.RefreshToken,
		RefreshExpiresIn: set.RefreshExpiresIn,
		TokenType:        set.TokenType,
		SessionState:     set.SessionState,
		Scope:            set.Scope,
	})
}

// Logout handles POST /api/auth/logout.
func (h *Account) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), userToken(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// LogoutAll handles POST /api/auth/logout/all.
func (h *Account) LogoutAll(c *gin.Context) {
	if err := h.svc.LogoutAll(c.Request.Context(), userToken(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Sessions handles GET /api/sessions.
func (h *Account) Sessions(c *gin.Context) {
	sessions, err := h.svc.Sessions(c.Request.Context(), userToken(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			SessionID:  s.SessionID,
			IPAddress:  s.IPAddress,
			StartedAt:  s.StartedAt,
			LastAccess: s.LastAccess,
			Location:   s.Location,
			Device:     s.Device,
		})
	}
	c.JSON(http.StatusOK, out)
}

// ResetPassword handles POST /api/account/password/reset.
func (h *Account) ResetPassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), userToken(c), req.NewPassword); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ChangePassword handles PUT /api/account/password.
func (h *Account) ChangePassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.ChangePassword(c.Request.Context(), userToken(c), req.NewPassword); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RequestEmailConfirmation handles POST /api/account/email/confirmation.
func (h *Account) RequestEmailConfirmation(c *gin.Context) {
	if err := h.svc.RequestEmailConfirmation(c.Request.Context(), userToken(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// Me handles GET /api/users/me.
func (h *Account) Me(c *gin.Context) {
	profile, err := h.svc.Profile(c.Request.Context(), userToken(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProfileResponse(profile))
}

// UpdateMe handles PUT /api/users/me.
func (h *Account) UpdateMe(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile, err := h.svc.UpdateProfile(c.Request.Context(), userToken(c), service.UpdateProfileParams{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProfileResponse(profile))
}

func userToken(c *gin.Context) string {
	return c.GetHeader(middleware.HeaderUserToken)
}

func (h *Account) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrUsernameTaken):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, token.ErrDecode),
		errors.Is(err, token.ErrEmptyToken):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrProfileNotFound):
		status = http.StatusNotFound
	case errors.Is(err, keycloak.ErrActionRequest):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("account request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
