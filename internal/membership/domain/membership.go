package domain

import (
	"time"
)

// Membership links a user to a company with a role. A user may hold memberships in many companies.
type Membership struct {
	ID        string
	UserID    string
	CompanyID string
	Role      Role
	Status    Status
	CreatedAt time.Time
}

// Role is a flat role name scoped to one company.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusInvited Status = "invited"
	StatusRevoked Status = "revoked"
)

// Active reports whether the membership grants access to its company.
func (m *Membership) Active() bool {
	return m != nil && m.Status == StatusActive
}
