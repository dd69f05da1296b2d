package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tenant-identity/backend/internal/db"
	"tenant-identity/backend/internal/ticket/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a login ticket repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the ticket. The ticket must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.LoginTicket) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO login_tickets (id, email, expires_at, used, used_at, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Email, t.ExpiresAt, t.Used, db.NullTime(t.UsedAt), t.CreatedAt)
	return err
}

// Consume flips used to true in a single conditional update. Concurrent callers race on the row;
// exactly one sees it returned.
func (r *PostgresRepository) Consume(ctx context.Context, id, email string, now time.Time) (*domain.LoginTicket, error) {
	var t domain.LoginTicket
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`UPDATE login_tickets SET used = TRUE, used_at = $3
		 WHERE id = $1 AND email = $2 AND used = FALSE AND expires_at > $3
		 RETURNING id, email, expires_at, used, used_at, created_at`,
		id, email, now,
	).Scan(&t.ID, &t.Email, &t.ExpiresAt, &t.Used, &usedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.UsedAt = db.TimePtr(usedAt)
	return &t, nil
}

// DeleteExpired removes tickets whose expiry is before the cutoff, used or not.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM login_tickets WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
