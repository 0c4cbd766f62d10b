// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ValidationStrategyOffline and ValidationStrategyOnline are the accepted values
// for TOKEN_VALIDATION_STRATEGY.
const (
	ValidationStrategyOffline = "OFFLINE"
	ValidationStrategyOnline  = "ONLINE"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// KeycloakBaseURL is the base URL of the Keycloak server (e.g. http://localhost:7080).
	KeycloakBaseURL string `mapstructure:"KEYCLOAK_BASE_URL"`
	// KeycloakRealm is the realm this service authenticates against.
	KeycloakRealm string `mapstructure:"KEYCLOAK_REALM"`
	// KeycloakClientID is the confidential client id used for token and admin calls.
	KeycloakClientID string `mapstructure:"KEYCLOAK_CLIENT_ID"`
	// KeycloakClientSecret is the confidential client secret.
	KeycloakClientSecret string `mapstructure:"KEYCLOAK_CLIENT_SECRET"`
	// KeycloakClientGrantType is the grant used for the service account token (client_credentials).
	KeycloakClientGrantType string `mapstructure:"KEYCLOAK_CLIENT_GRANT_TYPE"`
	// KeycloakScope is the scope requested for the service account token.
	KeycloakScope string `mapstructure:"KEYCLOAK_SCOPE"`
	// KeycloakTimeout is the HTTP timeout for Keycloak calls (e.g. "15s").
	KeycloakTimeout string `mapstructure:"KEYCLOAK_TIMEOUT"`
	// TokenValidationStrategy selects how presented tokens are checked: OFFLINE
	// (local expiry comparison) or ONLINE (Keycloak introspection). No default;
	// operators must choose explicitly.
	TokenValidationStrategy string `mapstructure:"TOKEN_VALIDATION_STRATEGY"`
	// ProtectedPathPrefixes is a comma-separated list of URL path prefixes that
	// require token validation (e.g. "/api/sessions,/api/users").
	ProtectedPathPrefixes string `mapstructure:"PROTECTED_PATH_PREFIXES"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("KEYCLOAK_BASE_URL", "")
	v.SetDefault("KEYCLOAK_REALM", "goaleaf")
	v.SetDefault("KEYCLOAK_CLIENT_ID", "")
	v.SetDefault("KEYCLOAK_CLIENT_SECRET", "")
	v.SetDefault("KEYCLOAK_CLIENT_GRANT_TYPE", "client_credentials")
	v.SetDefault("KEYCLOAK_SCOPE", "openid")
	v.SetDefault("KEYCLOAK_TIMEOUT", "15s")
	v.SetDefault("TOKEN_VALIDATION_STRATEGY", "")
	v.SetDefault("PROTECTED_PATH_PREFIXES", "/api/sessions,/api/users,/api/account,/api/auth/logout")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	switch cfg.TokenValidationStrategy {
	case ValidationStrategyOffline, ValidationStrategyOnline:
	case "":
		return nil, errors.New("config: TOKEN_VALIDATION_STRATEGY must be set to OFFLINE or ONLINE")
	default:
		return nil, fmt.Errorf("config: TOKEN_VALIDATION_STRATEGY must be OFFLINE or ONLINE, got %q", cfg.TokenValidationStrategy)
	}

	return &cfg, nil
}

// Timeout parses KeycloakTimeout as a time.Duration. Returns 15s if unset or invalid.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.KeycloakTimeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// ProtectedPrefixes returns the protected path prefixes from the comma-separated config.
// The server wiring seeds the filter's path registry with these.
func (c *Config) ProtectedPrefixes() []string {
	if c == nil || c.ProtectedPathPrefixes == "" {
		return nil
	}
	parts := strings.Split(c.ProtectedPathPrefixes, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
