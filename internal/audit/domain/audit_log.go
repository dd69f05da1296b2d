package domain

import "time"

// AuditLog represents an audit event. CompanyID is "_system" for events outside any company
// (e.g. a failed credential check).
type AuditLog struct {
	ID        string
	CompanyID string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
