package domain

import "time"

// RefreshToken is the persisted half of a session. Only the SHA-256 hash of the secret is stored;
// the plaintext leaves the process once, in the login or refresh response.
// Revoked is terminal.
type RefreshToken struct {
	ID         string
	UserID     string
	CompanyID  string
	TokenHash  string
	ClientInfo string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
}

// Active reports whether the token may still be exchanged at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return t != nil && !t.Revoked && now.Before(t.ExpiresAt)
}
