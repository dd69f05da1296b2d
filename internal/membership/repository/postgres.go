package repository

import (
	"context"
	"database/sql"
	"errors"

	"tenant-identity/backend/internal/membership/domain"
)

const membershipColumns = `id, user_id, company_id, role, status, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a membership repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByUserAndCompany returns the membership for the given user and company, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByUserAndCompany(ctx context.Context, userID, companyID string) (*domain.Membership, error) {
	var m domain.Membership
	var role, status string
	err := r.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE user_id = $1 AND company_id = $2`,
		userID, companyID,
	).Scan(&m.ID, &m.UserID, &m.CompanyID, &role, &status, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	m.Role, m.Status = domain.Role(role), domain.Status(status)
	return &m, nil
}

// ListByUser returns all memberships of the user regardless of status, oldest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Membership
	for rows.Next() {
		var m domain.Membership
		var role, status string
		if err := rows.Scan(&m.ID, &m.UserID, &m.CompanyID, &role, &status, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role, m.Status = domain.Role(role), domain.Status(status)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// Create persists the membership to the database. The membership must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, m *domain.Membership) error {
	status := m.Status
	if status == "" {
		status = domain.StatusActive
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO memberships (`+membershipColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.UserID, m.CompanyID, string(m.Role), string(status), m.CreatedAt)
	return err
}

// RevokeByUserAndCompany marks the user's membership in the company revoked.
func (r *PostgresRepository) RevokeByUserAndCompany(ctx context.Context, userID, companyID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE memberships SET status = 'revoked' WHERE user_id = $1 AND company_id = $2 AND status <> 'revoked'`,
		userID, companyID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
