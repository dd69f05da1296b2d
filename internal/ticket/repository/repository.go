package repository

import (
	"context"
	"time"

	"tenant-identity/backend/internal/ticket/domain"
)

// Repository defines persistence for login tickets.
type Repository interface {
	Create(ctx context.Context, t *domain.LoginTicket) error
	// Consume atomically marks the ticket used if it exists, is bound to email, is unused and unexpired at now.
	// Returns nil when no row matched.
	Consume(ctx context.Context, id, email string, now time.Time) (*domain.LoginTicket, error)
	// DeleteExpired removes tickets that expired before the cutoff. Returns the number removed.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
