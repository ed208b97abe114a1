// Package memory implements storage.UserStorage in process memory.
// Data is lost on restart; it is meant for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/iudanet/authgate/internal/models"
	"github.com/iudanet/authgate/internal/server/storage"
)

// Storage is a map-backed user store safe for concurrent use
type Storage struct {
	byID    map[string]*models.User
	byEmail map[string]string // email -> id
	mu      sync.RWMutex
}

// New creates an empty in-memory storage
func New() *Storage {
	return &Storage{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
}

// CreateUser stores a copy of user
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[user.Email]; exists {
		return storage.ErrUserAlreadyExists
	}
	if _, exists := s.byID[user.ID]; exists {
		return storage.ErrUserAlreadyExists
	}

	s.byID[user.ID] = cloneUser(user)
	s.byEmail[user.Email] = user.ID

	return nil
}

// GetUserByEmail retrieves user by exact email
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	return cloneUser(s.byID[id]), nil
}

// GetUserByID retrieves user by ID
func (s *Storage) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[userID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	return cloneUser(user), nil
}

// UpdateUser replaces the stored user, keeping the email index consistent
func (s *Storage) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[user.ID]
	if !ok {
		return storage.ErrUserNotFound
	}

	if user.Email != existing.Email {
		if _, taken := s.byEmail[user.Email]; taken {
			return storage.ErrUserAlreadyExists
		}
		delete(s.byEmail, existing.Email)
		s.byEmail[user.Email] = user.ID
	}

	user.UpdatedAt = time.Now().UTC()

	updated := cloneUser(user)
	updated.CreatedAt = existing.CreatedAt
	updated.LastLogin = existing.LastLogin
	s.byID[user.ID] = updated

	return nil
}

// DeleteUser removes user by ID
func (s *Storage) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[userID]
	if !ok {
		return storage.ErrUserNotFound
	}

	delete(s.byEmail, user.Email)
	delete(s.byID, userID)

	return nil
}

// UpdateLastLogin sets the last login timestamp
func (s *Storage) UpdateLastLogin(ctx context.Context, userID string, lastLogin time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[userID]
	if !ok {
		return storage.ErrUserNotFound
	}

	t := lastLogin
	user.LastLogin = &t

	return nil
}

// Ping always succeeds
func (s *Storage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *Storage) Close() error {
	return nil
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}
