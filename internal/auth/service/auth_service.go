// Package service implements account operations against Keycloak and the local
// stores, including the session refresh path that exchanges an expired access
// token for a fresh one.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"goaleaf-accounts/internal/keycloak"
	sessiondomain "goaleaf-accounts/internal/session/domain"
	"goaleaf-accounts/internal/token"
	userdomain "goaleaf-accounts/internal/user/domain"
)

// Sentinel errors for the auth service; handlers map them to HTTP codes.
var (
	ErrSessionNotFound    = errors.New("no session record for token")
	ErrSessionExpired     = errors.New("session expired")
	ErrTokenRefreshFailed = errors.New("token refresh failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrProfileNotFound    = errors.New("user profile not found")
)

// SessionRepo is the minimal session record repository needed by the auth service.
type SessionRepo interface {
	GetBySessionID(ctx context.Context, sessionID string) (*sessiondomain.Record, error)
	ListByUserID(ctx context.Context, userID string) ([]*sessiondomain.Record, error)
	Create(ctx context.Context, rec *sessiondomain.Record) error
	DeleteBySessionID(ctx context.Context, sessionID string) error
	DeleteByUserID(ctx context.Context, userID string) error
	Replace(ctx context.Context, oldSessionID string, rec *sessiondomain.Record) error
}

// ProfileRepo is the minimal profile repository needed by the auth service.
type ProfileRepo interface {
	GetByUserID(ctx context.Context, userID string) (*userdomain.Profile, error)
	GetByUsername(ctx context.Context, username string) (*userdomain.Profile, error)
	Create(ctx context.Context, p *userdomain.Profile) error
	Update(ctx context.Context, p *userdomain.Profile) error
	DeleteByUserID(ctx context.Context, userID string) error
}

// Provider is the Keycloak surface the auth service depends on.
type Provider interface {
	Authenticate(ctx context.Context, username, password string) (*keycloak.TokenSet, error)
	RefreshToken(ctx context.Context, refreshToken string) (*keycloak.TokenSet, error)
	DeleteSession(ctx context.Context, sessionID string) error
	RegisterUser(ctx context.Context, user keycloak.UserRepresentation) error
	FindUserByUsername(ctx context.Context, username string) (*keycloak.UserRepresentation, error)
	ListUserSessions(ctx context.Context, userID string) ([]keycloak.SessionRepresentation, error)
	TerminateAllSessions(ctx context.Context, userID string) error
	ResetPassword(ctx context.Context, userID, newPassword string, temporary bool) error
	SendVerificationEmail(ctx context.Context, userID string) error
}

// AuthService implements registration, login, logout, session listing, and the
// refresh coordination for expired access tokens.
type AuthService struct {
	sessions  SessionRepo
	profiles  ProfileRepo
	provider  Provider
	codec     *token.Codec
	validator token.Strategy
	logger    *slog.Logger
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	sessions SessionRepo,
	profiles ProfileRepo,
	provider Provider,
	codec *token.Codec,
	validator token.Strategy,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		sessions:  sessions,
		profiles:  profiles,
		provider:  provider,
		codec:     codec,
		validator: validator,
		logger:    logger,
	}
}

// ResolveInvalidToken exchanges an access token that failed validation for a
// fresh one using the stored refresh token of the same session. On success the
// session record is replaced with one carrying the new session id and refresh
// token, and the new access token is returned.
//
// Failures are terminal for the request: ErrSessionNotFound when no record
// matches the token's session id, ErrSessionExpired when the stored refresh
// token is itself no longer valid (the record and the Keycloak session are
// cleaned up first), ErrTokenRefreshFailed when the provider refuses the
// refresh or issues a token that still fails validation.
func (s *AuthService) ResolveInvalidToken(ctx context.Context, accessToken string) (string, error) {
	sessionID, err := s.codec.SessionID(accessToken)
	if err != nil {
		return "", err
	}

	record, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load session record: %w", err)
	}
	if record == nil {
		return "", ErrSessionNotFound
	}

	valid, err := s.validator.Validate(ctx, record.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("validate stored refresh token: %w", err)
	}
	if !valid {
		if err := s.sessions.DeleteBySessionID(ctx, sessionID); err != nil {
			return "", fmt.Errorf("delete expired session record: %w", err)
		}
		if err := s.provider.DeleteSession(ctx, sessionID); err != nil {
			s.logger.Warn("keycloak session cleanup failed", "session_id", sessionID, "error", err)
		}
		return "", ErrSessionExpired
	}

	set, err := s.provider.RefreshToken(ctx, record.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenRefreshFailed, err)
	}

	valid, err = s.validator.Validate(ctx, set.AccessToken)
	if err != nil {
		return "", fmt.Errorf("%w: validating refreshed token: %v", ErrTokenRefreshFailed, err)
	}
	if !valid {
		return "", ErrTokenRefreshFailed
	}

	newSessionID, err := s.codec.SessionID(set.AccessToken)
	if err != nil {
		return "", fmt.Errorf("%w: decoding refreshed token: %v", ErrTokenRefreshFailed, err)
	}
	replacement := &sessiondomain.Record{
		ID:           uuid.NewString(),
		SessionID:    newSessionID,
		RefreshToken: set.RefreshToken,
		UserID:       record.UserID,
		Location:     record.Location,
		Device:       record.Device,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.sessions.Replace(ctx, sessionID, replacement); err != nil {
		return "", fmt.Errorf("replace session record: %w", err)
	}

	s.logger.Info("session refreshed", "user_id", record.UserID, "old_session_id", sessionID, "session_id", newSessionID)
	return set.AccessToken, nil
}

// RegisterParams carries the fields for creating a new account.
type RegisterParams struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates the user in Keycloak and mirrors a local profile row.
// A verification email is requested; its failure does not fail registration.
func (s *AuthService) Register(ctx context.Context, p RegisterParams) (*userdomain.Profile, error) {
	username := strings.TrimSpace(p.Username)
	existing, err := s.profiles.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("check existing profile: %w", err)
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	err = s.provider.RegisterUser(ctx, keycloak.UserRepresentation{
		Username:  username,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Enabled:   true,
		Credentials: []keycloak.CredentialRepresentation{
			{Type: "password", Value: p.Password, Temporary: false},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create keycloak user: %w", err)
	}

	created, err := s.provider.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("look up created user: %w", err)
	}
	if created == nil {
		return nil, fmt.Errorf("look up created user: %q not found after creation", username)
	}

	now := time.Now().UTC()
	profile := &userdomain.Profile{
		ID:        uuid.NewString(),
		UserID:    created.ID,
		Username:  username,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	if err := s.provider.SendVerificationEmail(ctx, created.ID); err != nil {
		s.logger.Warn("verification email request failed", "user_id", created.ID, "error", err)
	}

	s.logger.Info("user registered", "user_id", created.ID, "username", username)
	return profile, nil
}

// LoginParams carries user credentials plus the request context captured in the
// session record.
type LoginParams struct {
	Username string
	Password string
	Location string
	Device   string
}

// Login performs the password grant and records the resulting session.
func (s *AuthService) Login(ctx context.Context, p LoginParams) (*keycloak.TokenSet, error) {
	set, err := s.provider.Authenticate(ctx, p.Username, p.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	sessionID, err := s.codec.SessionID(set.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decode issued token: %w", err)
	}
	userID, err := s.codec.Subject(set.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decode issued token: %w", err)
	}

	record := &sessiondomain.Record{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		RefreshToken: set.RefreshToken,
		UserID:       userID,
		Location:     p.Location,
		Device:       p.Device,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.sessions.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create session record: %w", err)
	}

	s.logger.Info("user logged in", "user_id", userID, "session_id", sessionID)
	return set, nil
}

// Logout terminates the session the token belongs to, on both sides.
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	sessionID, err := s.codec.SessionID(accessToken)
	if err != nil {
		return err
	}
	if err := s.sessions.DeleteBySessionID(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session record: %w", err)
	}
	if err := s.provider.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete keycloak session: %w", err)
	}
	return nil
}

// LogoutAll terminates every session of the token's user.
func (s *AuthService) LogoutAll(ctx context.Context, accessToken string) error {
	userID, err := s.codec.Subject(accessToken)
	if err != nil {
		return err
	}
	if err := s.sessions.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("delete session records: %w", err)
	}
	if err := s.provider.TerminateAllSessions(ctx, userID); err != nil {
		return fmt.Errorf("terminate keycloak sessions: %w", err)
	}
	return nil
}

// SessionInfo is the merged provider and local view of one active session.
type SessionInfo struct {
	SessionID  string
	IPAddress  string
	StartedAt  time.Time
	LastAccess time.Time
	Location   string
	Device     string
}

// Sessions lists the user's active Keycloak sessions, enriched with the
// location and device captured at login where a local record exists.
func (s *AuthService) Sessions(ctx context.Context, accessToken string) ([]SessionInfo, error) {
	userID, err := s.codec.Subject(accessToken)
	if err != nil {
		return nil, err
	}

	providerSessions, err := s.provider.ListUserSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list keycloak sessions: %w", err)
	}
	records, err := s.sessions.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list session records: %w", err)
	}
	byID := make(map[string]*sessiondomain.Record, len(records))
	for _, rec := range records {
		byID[rec.SessionID] = rec
	}

	out := make([]SessionInfo, 0, len(providerSessions))
	for _, ps := range providerSessions {
		info := SessionInfo{
			SessionID:  ps.ID,
			IPAddress:  ps.IPAddress,
			StartedAt:  time.UnixMilli(ps.Start).UTC(),
			LastAccess: time.UnixMilli(ps.LastAccess).UTC(),
		}
		if rec, ok := byID[ps.ID]; ok {
			info.Location = rec.Location
			info.Device = rec.Device
		}
		out = append(out, info)
	}
	return out, nil
}

// ResetPassword sets a temporary password for the token's user; Keycloak will
// require a change at next login.
func (s *AuthService) ResetPassword(ctx context.Context, accessToken, newPassword string) error {
	userID, err := s.codec.Subject(accessToken)
	if err != nil {
		return err
	}
	return s.provider.ResetPassword(ctx, userID, newPassword, true)
}

// ChangePassword replaces the token's user's password permanently.
func (s *AuthService) ChangePassword(ctx context.Context, accessToken, newPassword string) error {
	userID, err := s.codec.Subject(accessToken)
	if err != nil {
		return err
	}
	return s.provider.ResetPassword(ctx, userID, newPassword, false)
}

// RequestEmailConfirmation triggers the provider's verification email flow.
func (s *AuthService) RequestEmailConfirmation(ctx context.Context, accessToken string) error {
	userID, err := s.codec.Subject(accessToken)
	if err != nil {
		return err
	}
	return s.provider.SendVerificationEmail(ctx, userID)
}

// Profile returns the local profile for the token's user.
func (s *AuthService) Profile(ctx context.Context, accessToken string) (*userdomain.Profile, error) {
	userID, err := s.codec.Subject(accessToken)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	return profile, nil
}

// UpdateProfileParams carries the mutable profile fields. Nil fields are left
// unchanged.
type UpdateProfileParams struct {
	Email     *string
	FirstName *string
	LastName  *string
}

// UpdateProfile updates the local profile for the token's user and returns the
// result.
func (s *AuthService) UpdateProfile(ctx context.Context, accessToken string, p UpdateProfileParams) (*userdomain.Profile, error) {
	profile, err := s.Profile(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if p.Email != nil {
		profile.Email = *p.Email
	}
	if p.FirstName != nil {
		profile.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		profile.LastName = *p.LastName
	}
	profile.UpdatedAt = time.Now().UTC()
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return profile, nil
}
