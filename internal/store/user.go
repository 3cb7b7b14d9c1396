package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/tasktrail-api/internal/domain"
)

// UserStore defines read access to users.
type UserStore interface {
	// GetByID retrieves a user by their unique ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetEarliest returns the user with the oldest created_at, used as the
	// system actor. Returns ErrUserNotFound when there are no users.
	GetEarliest(ctx context.Context) (*domain.User, error)
}
