package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tenant-identity/backend/internal/db"
	"tenant-identity/backend/internal/passwordreset/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a password reset repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByHash returns the request for the hash, or nil if not found.
func (r *PostgresRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.Request, error) {
	var req domain.Request
	var status string
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, status, requested_at, used_at, expires_at
		 FROM password_reset_requests WHERE token_hash = $1`, tokenHash,
	).Scan(&req.ID, &req.UserID, &req.TokenHash, &status, &req.RequestedAt, &usedAt, &req.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	req.Status = domain.Status(status)
	req.UsedAt = db.TimePtr(usedAt)
	return &req, nil
}

// ReplaceOutstanding locks the user row so concurrent requests for one user run one after another.
// The partial unique index on (user_id) WHERE status = 'REQUESTED' backs the same rule.
func (r *PostgresRepository) ReplaceOutstanding(ctx context.Context, req *domain.Request) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var locked string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, req.UserID).Scan(&locked); err != nil {
		return 0, fmt.Errorf("lock user: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE password_reset_requests SET status = 'REVOKED' WHERE user_id = $1 AND status = 'REQUESTED'`, req.UserID)
	if err != nil {
		return 0, fmt.Errorf("revoke outstanding: %w", err)
	}
	revoked, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO password_reset_requests (id, user_id, token_hash, status, requested_at, used_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ID, req.UserID, req.TokenHash, string(req.Status), req.RequestedAt, db.NullTime(req.UsedAt), req.ExpiresAt); err != nil {
		return 0, fmt.Errorf("insert request: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reset request: %w", err)
	}
	return revoked, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, id string, now time.Time) (bool, error) {
	n, err := r.exec(ctx,
		`UPDATE password_reset_requests SET status = 'USED', used_at = $2
		 WHERE id = $1 AND status = 'REQUESTED' AND expires_at > $2`, id, now)
	return n == 1, err
}

func (r *PostgresRepository) MarkExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	n, err := r.exec(ctx,
		`UPDATE password_reset_requests SET status = 'EXPIRED'
		 WHERE id = $1 AND status = 'REQUESTED' AND expires_at <= $2`, id, now)
	return n == 1, err
}

func (r *PostgresRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx,
		`UPDATE password_reset_requests SET status = 'EXPIRED' WHERE status = 'REQUESTED' AND expires_at <= $1`, now)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
