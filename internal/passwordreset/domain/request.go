package domain

import "time"

// Status is the lifecycle state of a reset request. Only REQUESTED can move; every other state is terminal.
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusUsed      Status = "USED"
	StatusExpired   Status = "EXPIRED"
	StatusRevoked   Status = "REVOKED"
)

// Request is a password reset request. The emailed token is stored only as TokenHash.
type Request struct {
	ID          string
	UserID      string
	TokenHash   string
	Status      Status
	RequestedAt time.Time
	UsedAt      *time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the request's window has closed at now.
func (r *Request) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
