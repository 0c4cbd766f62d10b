package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goaleaf-accounts/internal/config"
)

// ErrEmptyToken is returned when an empty string is presented for validation.
// An empty token is undefined input, not an inactive one.
var ErrEmptyToken = errors.New("token must not be empty")

// Strategy decides whether a Keycloak-issued credential is currently active.
// The same contract covers access and refresh tokens: both are verifiable
// JWTs issued by the provider.
type Strategy interface {
	Validate(ctx context.Context, token string) (bool, error)
}

// Introspector is the provider-side introspection call used by the online strategy.
type Introspector interface {
	Introspect(ctx context.Context, token string) (bool, error)
}

// OfflineStrategy validates a token by comparing its exp claim against a
// current-time source. It cannot detect provider-side revocation.
type OfflineStrategy struct {
	codec *Codec
	now   func() time.Time
}

// NewOfflineStrategy returns an offline strategy using the given time source.
// A nil now defaults to time.Now in UTC.
func NewOfflineStrategy(codec *Codec, now func() time.Time) *OfflineStrategy {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &OfflineStrategy{codec: codec, now: now}
}

// Validate returns true iff the token's expiry is strictly after the current time.
// An empty token fails with ErrEmptyToken; a malformed one with ErrDecode.
func (s *OfflineStrategy) Validate(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, ErrEmptyToken
	}
	expiresAt, err := s.codec.ExpiresAt(token)
	if err != nil {
		return false, err
	}
	return expiresAt.After(s.now()), nil
}

// OnlineStrategy validates a token by asking Keycloak's introspection endpoint.
// The provider is the source of truth; transport and parse failures are treated
// as "not active" (fail closed) rather than surfaced to the caller.
type OnlineStrategy struct {
	introspector Introspector
}

// NewOnlineStrategy returns an online strategy backed by the given introspector.
func NewOnlineStrategy(introspector Introspector) *OnlineStrategy {
	return &OnlineStrategy{introspector: introspector}
}

// Validate returns the provider's active flag for the token. An empty token
// fails with ErrEmptyToken; any introspection error yields (false, nil).
func (s *OnlineStrategy) Validate(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, ErrEmptyToken
	}
	active, err := s.introspector.Introspect(ctx, StripScheme(token))
	if err != nil {
		return false, nil
	}
	return active, nil
}

// Validator selects the offline or online strategy per call from a
// configuration source, so operators can switch without a restart.
type Validator struct {
	offline *OfflineStrategy
	online  *OnlineStrategy
	source  func() string
}

// NewValidator returns a Validator that reads the strategy name from source on
// every Validate call.
func NewValidator(codec *Codec, introspector Introspector, source func() string) *Validator {
	return &Validator{
		offline: NewOfflineStrategy(codec, nil),
		online:  NewOnlineStrategy(introspector),
		source:  source,
	}
}

// Validate checks the token with the currently configured strategy.
func (v *Validator) Validate(ctx context.Context, token string) (bool, error) {
	switch name := v.source(); name {
	case config.ValidationStrategyOffline:
		return v.offline.Validate(ctx, token)
	case config.ValidationStrategyOnline:
		return v.online.Validate(ctx, token)
	default:
		return false, fmt.Errorf("unknown token validation strategy %q", name)
	}
}
