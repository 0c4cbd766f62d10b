package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"goaleaf-accounts/internal/user/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a profile repository backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const profileColumns = "id, user_id, username, email, first_name, last_name, created_at, updated_at"

// GetByUserID returns the profile for the Keycloak user id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM user_profiles WHERE user_id = $1", userID)
	return scanProfile(row)
}

// GetByUsername returns the profile with the given username, or nil if not found.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*domain.Profile, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM user_profiles WHERE username = $1", username)
	return scanProfile(row)
}

// Create persists the profile. The profile must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_profiles (id, user_id, username, email, first_name, last_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.UserID, p.Username, p.Email,
		nullIfEmpty(p.FirstName), nullIfEmpty(p.LastName), p.CreatedAt, p.UpdatedAt)
	return err
}

// Update rewrites the mutable profile fields for the profile's user id.
func (r *PostgresRepository) Update(ctx context.Context, p *domain.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_profiles
		 SET email = $2, first_name = $3, last_name = $4, updated_at = $5
		 WHERE user_id = $1`,
		p.UserID, p.Email, nullIfEmpty(p.FirstName), nullIfEmpty(p.LastName), time.Now().UTC())
	return err
}

// DeleteByUserID removes the profile for the given Keycloak user id, if present.
func (r *PostgresRepository) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM user_profiles WHERE user_id = $1", userID)
	return err
}

func scanProfile(row *sql.Row) (*domain.Profile, error) {
	var p domain.Profile
	var firstName, lastName sql.NullString
	err := row.Scan(&p.ID, &p.UserID, &p.Username, &p.Email, &firstName, &lastName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.FirstName = firstName.String
	p.LastName = lastName.String
	return &p, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
