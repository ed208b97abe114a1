// Package mocks provides gomock implementations of the storage and
// authenticator interfaces.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	users := mocks.NewMockUserStorage(ctrl)
//	users.EXPECT().GetUserByEmail(gomock.Any(), "t@example.com").Return(nil, storage.ErrUserNotFound)
package mocks

// Generate mock for UserStorage interface from internal/server/storage package.
// This creates MockUserStorage with methods for all UserStorage interface methods:
// CreateUser, GetUserByEmail, GetUserByID, UpdateUser, DeleteUser, UpdateLastLogin
//go:generate go tool mockgen -package=mocks -destination=user_storage_mock.go github.com/iudanet/authgate/internal/server/storage UserStorage

// Generate mock for Authenticator interface consumed by HTTP handlers:
// Register, Login, Profile
//go:generate go tool mockgen -package=mocks -destination=authenticator_mock.go github.com/iudanet/authgate/internal/server/handlers Authenticator
