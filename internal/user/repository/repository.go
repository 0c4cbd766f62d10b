package repository

import (
	"context"

	"goaleaf-accounts/internal/user/domain"
)

// Repository defines persistence for user profiles.
type Repository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.Profile, error)
	GetByUsername(ctx context.Context, username string) (*domain.Profile, error)
	Create(ctx context.Context, p *domain.Profile) error
	Update(ctx context.Context, p *domain.Profile) error
	DeleteByUserID(ctx context.Context, userID string) error
}
