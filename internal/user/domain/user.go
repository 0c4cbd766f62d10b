package domain

import (
	"errors"
	"net/mail"
	"time"
)

// Profile is the local mirror of a Keycloak user. Keycloak owns credentials
// and identity; the profile carries the fields this service serves directly.
type Profile struct {
	ID        string
	UserID    string // Keycloak user id, the sub claim of issued tokens
	Username  string
	Email     string
	FirstName string
	LastName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate validates the profile for persistence. Returns an error describing the first validation failure.
func (p *Profile) Validate() error {
	if p.UserID == "" {
		return errors.New("user id is required")
	}
	if p.Username == "" {
		return errors.New("username is required")
	}
	if p.Email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return errors.New("email is not a valid address")
	}
	return nil
}
