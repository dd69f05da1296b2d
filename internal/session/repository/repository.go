package repository

import (
	"context"
	"time"

	"tenant-identity/backend/internal/session/domain"
)

// Repository defines persistence for refresh tokens. Every revoke is a conditional update on revoked = false.
type Repository interface {
	Create(ctx context.Context, t *domain.RefreshToken) error
	// GetByHash returns the token with the given hash, or nil if not found.
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	// Revoke marks one token revoked. Returns false if it was already revoked or does not exist.
	Revoke(ctx context.Context, id string, at time.Time) (bool, error)
	// RevokeAllForUser revokes every unrevoked token of the user committed when the call runs, stamping revoked_at with at.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	// RevokeAllForUserInCompany is RevokeAllForUser limited to one company.
	RevokeAllForUserInCompany(ctx context.Context, userID, companyID string, at time.Time) (int64, error)
	// DeleteExpired removes tokens that expired before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
