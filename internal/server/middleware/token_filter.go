package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"goaleaf-accounts/internal/auth/service"
	"goaleaf-accounts/internal/token"
)

// HeaderUserToken is the request header carrying the user's access token,
// optionally "Bearer "-prefixed.
const HeaderUserToken = "User-Token"

// KeyTokenRefreshed is the gin context key set to true when the filter
// replaced the request's access token during this request. Handlers use it to
// echo the new token back to the caller.
const KeyTokenRefreshed = "USER_ACCESS_TOKEN_REFRESHED"

// Resolver exchanges an access token that failed validation for a fresh one.
type Resolver interface {
	ResolveInvalidToken(ctx context.Context, accessToken string) (string, error)
}

// TokenValidation returns the filter middleware. For requests whose path the
// registry covers it validates the User-Token header; when validation fails it
// attempts a session refresh and, on success, rewrites the header in place so
// every downstream read sees the new token. Requests outside the registry pass
// through untouched.
func TokenValidation(registry *PathRegistry, validator token.Strategy, resolver Resolver, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		if !registry.Covers(c.Request.URL.Path) {
			c.Next()
			return
		}

		presented := c.GetHeader(HeaderUserToken)
		valid, err := validator.Validate(c.Request.Context(), presented)
		if err != nil {
			abortWithTokenError(c, logger, err)
			return
		}
		if valid {
			c.Set(KeyTokenRefreshed, false)
			c.Next()
			return
		}

		refreshed, err := resolver.ResolveInvalidToken(c.Request.Context(), presented)
		if err != nil {
			abortWithTokenError(c, logger, err)
			return
		}
		c.Request.Header.Set(HeaderUserToken, refreshed)
		c.Set(KeyTokenRefreshed, true)
		c.Next()
	}
}

func abortWithTokenError(c *gin.Context, logger *slog.Logger, err error) {
	status := http.StatusUnauthorized
	switch {
	case errors.Is(err, token.ErrEmptyToken),
		errors.Is(err, token.ErrDecode),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrSessionExpired):
	case errors.Is(err, service.ErrTokenRefreshFailed):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}
	logger.Info("request rejected by token filter",
		"path", c.Request.URL.Path, "status", status, "error", err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
