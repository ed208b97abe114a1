package storage

import (
	"context"
	"time"
)

// AuthStorage defines interface for storing the client session.
// Only one session exists at a time: SaveAuth replaces the previous one.
type AuthStorage interface {
	// SaveAuth stores authentication data
	SaveAuth(ctx context.Context, auth *AuthData) error

	// GetAuth retrieves stored authentication data
	// Returns ErrAuthNotFound if no auth data exists
	GetAuth(ctx context.Context) (*AuthData, error)

	// DeleteAuth removes stored authentication data (logout)
	// Returns ErrAuthNotFound if no auth data exists
	DeleteAuth(ctx context.Context) error
}

// AuthData represents the saved session of a logged in user
type AuthData struct {
	Email       string `json:"email"`
	UserID      string `json:"user_id,omitempty"`
	Role        string `json:"role,omitempty"`
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // unix seconds
}

// Expired reports whether the access token is expired at now
func (a *AuthData) Expired(now time.Time) bool {
	return !now.Before(time.Unix(a.ExpiresAt, 0))
}
