package repository

import (
	"context"
	"database/sql"
	"errors"

	"tenant-identity/backend/internal/company/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a company repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the company for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Company, error) {
	var c domain.Company
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, status, created_at FROM companies WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &status, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.Status = domain.CompanyStatus(status)
	return &c, nil
}

// Create persists the company to the database. The company must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Company) error {
	if err := c.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO companies (id, name, status, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, string(c.Status), c.CreatedAt)
	return err
}
