package domain

import (
	"errors"
	"time"
)

// Company is a tenant. Users reach a company only through a membership.
type Company struct {
	ID        string
	Name      string
	Status    CompanyStatus
	CreatedAt time.Time
}

type CompanyStatus string

const (
	CompanyStatusActive    CompanyStatus = "active"
	CompanyStatusSuspended CompanyStatus = "suspended"
)

// Active reports whether sessions may be opened in the company.
func (c *Company) Active() bool {
	return c != nil && c.Status == CompanyStatusActive
}

// Validate validates the company for persistence. Returns an error describing the first validation failure.
func (c *Company) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	if c.Status == "" {
		c.Status = CompanyStatusActive
	}
	return nil
}
