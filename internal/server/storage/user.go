// Package storage defines the credential store used by the authentication core.
// Implementations live in the sqlite, postgres and memory subpackages; their own
// locking and transactions are their responsibility, not the caller's.
package storage

import (
	"context"
	"time"

	"github.com/iudanet/authgate/internal/models"
)

// UserStorage defines interface for user identity persistence
type UserStorage interface {
	// CreateUser creates a new user in the storage
	// Returns ErrUserAlreadyExists if email is already taken (exact, case-sensitive match)
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByEmail retrieves user by email (exact, case-sensitive match)
	// Returns ErrUserNotFound if user doesn't exist
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUserByID retrieves user by ID
	// Returns ErrUserNotFound if user doesn't exist
	GetUserByID(ctx context.Context, userID string) (*models.User, error)

	// UpdateUser updates name, email, password hash and role, bumping updated_at
	// Returns ErrUserNotFound if user doesn't exist
	UpdateUser(ctx context.Context, user *models.User) error

	// DeleteUser deletes user by ID
	// Returns ErrUserNotFound if user doesn't exist
	DeleteUser(ctx context.Context, userID string) error

	// UpdateLastLogin updates the last login timestamp
	// Returns ErrUserNotFound if user doesn't exist
	UpdateLastLogin(ctx context.Context, userID string, lastLogin time.Time) error
}
