package domain

import "time"

// LoginTicket is the single-use proof that a password check succeeded for Email.
// It is redeemed exactly once by LoginWithCompany; Used is terminal.
type LoginTicket struct {
	ID        string
	Email     string
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Redeemable reports whether the ticket could still be consumed at now.
func (t *LoginTicket) Redeemable(now time.Time) bool {
	return t != nil && !t.Used && now.Before(t.ExpiresAt)
}
