package repository

import (
	"context"
	"time"

	"tenant-identity/backend/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// UpdatePassword replaces the stored password hash. Returns false if no such user exists.
	UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) (bool, error)
}
