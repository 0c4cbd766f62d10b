// Package token decodes Keycloak-issued bearer tokens and decides whether a
// presented token is still active. Decoding is local and unverified: the tokens
// are issued and signed by Keycloak, and this service only needs read access to
// the sid, sub, and exp claims.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrDecode is returned when a presented token cannot be parsed as a JWT.
var ErrDecode = errors.New("malformed token")

// SchemePrefix is the authorization scheme marker optionally prepended to
// tokens in the User-Token header.
const SchemePrefix = "Bearer"

// Codec extracts claims from Keycloak-issued JWTs without verifying the
// signature. No network calls are performed.
type Codec struct {
	parser *jwt.Parser
}

// NewCodec returns a Codec for claim extraction.
func NewCodec() *Codec {
	return &Codec{parser: jwt.NewParser()}
}

// SessionID returns the sid claim of the given token.
func (c *Codec) SessionID(token string) (string, error) {
	claims, err := c.decode(token)
	if err != nil {
		return "", err
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return "", fmt.Errorf("%w: missing sid claim", ErrDecode)
	}
	return sid, nil
}

// Subject returns the sub claim (the Keycloak user id) of the given token.
func (c *Codec) Subject(token string) (string, error) {
	claims, err := c.decode(token)
	if err != nil {
		return "", err
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: missing sub claim", ErrDecode)
	}
	return sub, nil
}

// ExpiresAt returns the exp claim of the given token as an absolute instant.
func (c *Codec) ExpiresAt(token string) (time.Time, error) {
	claims, err := c.decode(token)
	if err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp claim", ErrDecode)
	}
	return exp.Time, nil
}

func (c *Codec) decode(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := c.parser.ParseUnverified(StripScheme(token), &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return claims, nil
}

// StripScheme removes a leading "Bearer " scheme marker, if present. The
// marker only counts when followed by whitespace; a token that merely starts
// with those bytes is left intact. All claim accessors accept both the raw and
// the prefixed form.
func StripScheme(token string) string {
	trimmed := strings.TrimSpace(token)
	if len(trimmed) > len(SchemePrefix) && strings.EqualFold(trimmed[:len(SchemePrefix)], SchemePrefix) {
		if rest := trimmed[len(SchemePrefix):]; rest[0] == ' ' || rest[0] == '\t' {
			return strings.TrimSpace(rest)
		}
	}
	return trimmed
}
