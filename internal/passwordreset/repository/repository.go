package repository

import (
	"context"
	"time"

	"tenant-identity/backend/internal/passwordreset/domain"
)

// Repository defines persistence for password reset requests. Every transition is conditional on status = REQUESTED.
type Repository interface {
	// GetByHash returns the request with the given token hash, or nil if not found.
	GetByHash(ctx context.Context, tokenHash string) (*domain.Request, error)
	// ReplaceOutstanding atomically moves every REQUESTED request of r's user to REVOKED and creates r.
	// Concurrent calls for one user serialize, so at most one request per user is ever REQUESTED.
	ReplaceOutstanding(ctx context.Context, r *domain.Request) (revoked int64, err error)
	// MarkUsed moves the request REQUESTED -> USED if it has not expired at now. Returns false if the transition lost.
	MarkUsed(ctx context.Context, id string, now time.Time) (bool, error)
	// MarkExpired moves the request REQUESTED -> EXPIRED if its expiry has passed at now.
	MarkExpired(ctx context.Context, id string, now time.Time) (bool, error)
	// ExpireStale moves every REQUESTED request past its expiry at now to EXPIRED.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}
