package repository

import (
	"context"

	"tenant-identity/backend/internal/membership/domain"
)

// Repository defines persistence for memberships.
type Repository interface {
	GetByUserAndCompany(ctx context.Context, userID, companyID string) (*domain.Membership, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Membership, error)
	Create(ctx context.Context, m *domain.Membership) error
	// RevokeByUserAndCompany marks the membership revoked. Returns false if there was no active or invited membership.
	RevokeByUserAndCompany(ctx context.Context, userID, companyID string) (bool, error)
}
