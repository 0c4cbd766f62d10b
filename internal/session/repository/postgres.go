package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"goaleaf-accounts/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session record repository backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = "id, session_id, refresh_token, user_id, location, device, created_at"

// GetBySessionID returns the record for the Keycloak session id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM user_session_records WHERE session_id = $1", sessionID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// ListByUserID returns all records for the given user. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.Record, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM user_session_records WHERE user_id = $1 ORDER BY created_at", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Create persists the record. The record must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, rec *domain.Record) error {
	return insertRecord(ctx, r.db, rec)
}

// DeleteBySessionID removes the record for the Keycloak session id, if present.
func (r *PostgresRepository) DeleteBySessionID(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM user_session_records WHERE session_id = $1", sessionID)
	return err
}

// DeleteByUserID removes all records for the given user.
func (r *PostgresRepository) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM user_session_records WHERE user_id = $1", userID)
	return err
}

// Replace atomically deletes the record for oldSessionID and inserts rec.
// Used after a token refresh so the store never holds two records for one
// logical session.
func (r *PostgresRepository) Replace(ctx context.Context, oldSessionID string, rec *domain.Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM user_session_records WHERE session_id = $1", oldSessionID); err != nil {
		return fmt.Errorf("delete old record: %w", err)
	}
	if err := insertRecord(ctx, tx, rec); err != nil {
		return fmt.Errorf("insert new record: %w", err)
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, db execer, rec *domain.Record) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO user_session_records (id, session_id, refresh_token, user_id, location, device, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.SessionID, rec.RefreshToken, rec.UserID,
		nullIfEmpty(rec.Location), nullIfEmpty(rec.Device), rec.CreatedAt)
	return err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*domain.Record, error) {
	var rec domain.Record
	var location, device sql.NullString
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.RefreshToken, &rec.UserID, &location, &device, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.Location = location.String
	rec.Device = device.String
	return &rec, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
