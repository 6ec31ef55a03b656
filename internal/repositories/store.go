package repositories

import (
	"context"
	"errors"

	"github.com/nft-gate/backend/internal/models"
)

// ErrStoreUnavailable is returned when no backend could serve an operation.
var ErrStoreUnavailable = errors.New("verification store unavailable")

// UserStore persists UserAccounts with their embedded wallet lists.
type UserStore interface {
	// GetUser returns nil, nil when the user does not exist.
	GetUser(ctx context.Context, id string) (*models.UserAccount, error)
	// SaveUser upserts by user id, replacing the wallet list.
	SaveUser(ctx context.Context, user *models.UserAccount) error
	// FindVerifiedOwners returns ids of users holding address verified.
	FindVerifiedOwners(ctx context.Context, address string) ([]string, error)
	ListUsersWithPending(ctx context.Context) ([]*models.UserAccount, error)
	ListUsers(ctx context.Context) ([]*models.UserAccount, error)
}
