package domain

import "time"

// Record is the service-side snapshot of a Keycloak session. It pairs the
// provider's session id with the refresh token needed to renew the session
// without user interaction, plus request metadata captured at login.
type Record struct {
	ID           string
	SessionID    string // Keycloak session id, the sid claim of issued tokens
	RefreshToken string
	UserID       string // Keycloak user id, the sub claim
	Location     string
	Device       string
	CreatedAt    time.Time
}
