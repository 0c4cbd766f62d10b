// Package server assembles the gin engine: middleware order, route table, and
// the health endpoint.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"goaleaf-accounts/internal/account/handler"
	"goaleaf-accounts/internal/server/middleware"
	"goaleaf-accounts/internal/token"
)

// Pinger reports storage reachability for the health endpoint (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps holds the dependencies for the HTTP router.
type Deps struct {
	Account   handler.AccountService
	Validator token.Strategy
	Resolver  middleware.Resolver
	// Registry decides which paths the token validation filter covers.
	Registry *middleware.PathRegistry
	// DB is pinged by /healthz when set.
	DB     Pinger
	Logger *slog.Logger
}

// NewRouter builds the engine. The token validation filter runs before every
// route; the echo middleware behind it surfaces refreshed tokens to callers.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.TokenValidation(deps.Registry, deps.Validator, deps.Resolver, logger))
	engine.Use(middleware.RefreshedTokenEcho())

	engine.GET("/healthz", healthHandler(deps.DB))

	account := handler.NewAccount(deps.Account, logger)
	api := engine.Group("/api")
	{
		api.POST("/auth/register", account.Register)
		api.POST("/auth/login", account.Login)
		api.POST("/auth/logout", account.Logout)
		api.POST("/auth/logout/all", account.LogoutAll)
		api.GET("/sessions", account.Sessions)
		api.POST("/account/password/reset", account.ResetPassword)
		api.PUT("/account/password", account.ChangePassword)
		api.POST("/account/email/confirmation", account.RequestEmailConfirmation)
		api.GET("/users/me", account.Me)
		api.PUT("/users/me", account.UpdateMe)
	}
	return engine
}

func healthHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
