package repository

import (
	"context"

	"goaleaf-accounts/internal/session/domain"
)

// Repository defines persistence for session records.
type Repository interface {
	GetBySessionID(ctx context.Context, sessionID string) (*domain.Record, error)
	ListByUserID(ctx context.Context, userID string) ([]*domain.Record, error)
	Create(ctx context.Context, rec *domain.Record) error
	DeleteBySessionID(ctx context.Context, sessionID string) error
	DeleteByUserID(ctx context.Context, userID string) error
	Replace(ctx context.Context, oldSessionID string, rec *domain.Record) error
}
