package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/nano-midea/engine/internal/models"
)

// UserRepository defines the interface for user data lookups
type UserRepository interface {
	GetUser(ctx context.Context, uid string) (*models.User, error)
	GetStats(ctx context.Context, uid string) (*models.UserStats, error)
	GetFollowers(ctx context.Context, uid string) ([]string, error)
	IsUsernameAvailable(ctx context.Context, username string) (bool, error)
}

// StoreUserRepository implements UserRepository on a DocumentStore
type StoreUserRepository struct {
	store DocumentStore
}

// NewStoreUserRepository creates a new StoreUserRepository
func NewStoreUserRepository(store DocumentStore) *StoreUserRepository {
	return &StoreUserRepository{store: store}
}

// GetUser retrieves a user profile by uid
func (r *StoreUserRepository) GetUser(ctx context.Context, uid string) (*models.User, error) {
	if uid == "" {
		return nil, fmt.Errorf("user id is empty: %w", ErrNotFound)
	}
	var user models.User
	if err := r.store.Get(ctx, UserPath(uid), &user); err != nil {
		return nil, err
	}
	user.ID = uid
	return &user, nil
}

// GetStats retrieves the engagement statistics of a user. A user who never
// liked or reshared anything has no stats document; that reads as empty stats.
func (r *StoreUserRepository) GetStats(ctx context.Context, uid string) (*models.UserStats, error) {
	var stats models.UserStats
	err := r.store.Get(ctx, StatsPath(uid), &stats)
	if errors.Is(err, ErrNotFound) {
		return &models.UserStats{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetFollowers returns the follower set stored on the user document
func (r *StoreUserRepository) GetFollowers(ctx context.Context, uid string) ([]string, error) {
	user, err := r.GetUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	return user.Followers, nil
}

// IsUsernameAvailable reports whether no profile uses username yet
func (r *StoreUserRepository) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	docs, err := r.store.Find(ctx, Query{Collection: UsersCollection, Limit: 1}.Where("username", OpEqual, username))
	if err != nil {
		return false, err
	}
	return len(docs) == 0, nil
}
