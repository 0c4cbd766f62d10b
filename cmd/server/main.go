package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goaleaf-accounts/internal/auth/service"
	"goaleaf-accounts/internal/config"
	"goaleaf-accounts/internal/db"
	"goaleaf-accounts/internal/keycloak"
	"goaleaf-accounts/internal/server"
	"goaleaf-accounts/internal/server/middleware"
	sessionrepo "goaleaf-accounts/internal/session/repository"
	"goaleaf-accounts/internal/token"
	userrepo "goaleaf-accounts/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	provider := keycloak.NewClient(cfg, logger)
	codec := token.NewCodec()
	validator := token.NewValidator(codec, provider, func() string { return cfg.TokenValidationStrategy })

	authService := service.NewAuthService(
		sessionrepo.NewPostgresRepository(database),
		userrepo.NewPostgresRepository(database),
		provider,
		codec,
		validator,
		logger,
	)

	registry := middleware.NewPathRegistry(cfg.ProtectedPrefixes()...)
	router := server.NewRouter(server.Deps{
		Account:   authService,
		Validator: validator,
		Resolver:  authService,
		Registry:  registry,
		DB:        database,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}
