package users

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// Repository is the persistent user directory. Lookups take includeDeleted
// explicitly; soft-deleted users are invisible unless it is true.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByEmail(ctx context.Context, email string, includeDeleted bool) (*models.User, error)
	FindByID(ctx context.Context, id string, includeDeleted bool) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	SetRefreshToken(ctx context.Context, id string, token string) error
	SwapRefreshToken(ctx context.Context, id string, expected string, next string) (bool, error)
	SoftDelete(ctx context.Context, id string) error
	HardDelete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}
