package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iudanet/authgate/internal/config"
	"github.com/iudanet/authgate/internal/models"
	"github.com/iudanet/authgate/internal/server/auth"
	"github.com/iudanet/authgate/internal/server/storage"
)

// EnsureAdmin создает администратора из конфигурации, если email еще не занят.
// Существующая запись не изменяется, даже если ее роль не admin.
func EnsureAdmin(ctx context.Context, logger *slog.Logger, authSvc *auth.Service, users storage.UserStorage, admin config.AdminConfig) error {
	if !admin.Enabled() {
		return nil
	}

	existing, err := users.GetUserByEmail(ctx, admin.Email)
	switch {
	case err == nil:
		if existing.Role != models.RoleAdmin {
			logger.WarnContext(ctx, "bootstrap admin email belongs to a non-admin user, leaving it unchanged",
				slog.String("user_id", existing.ID),
				slog.String("role", string(existing.Role)))
		}
		return nil
	case !errors.Is(err, storage.ErrUserNotFound):
		return fmt.Errorf("failed to look up bootstrap admin: %w", err)
	}

	user, err := authSvc.Register(ctx, auth.RegisterParams{
		Name:     admin.Name,
		Email:    admin.Email,
		Password: admin.Password,
		Role:     models.RoleAdmin,
	})
	if err != nil {
		// Параллельно стартовавший экземпляр успел создать запись
		if errors.Is(err, auth.ErrDuplicateEmail) {
			return nil
		}
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	logger.InfoContext(ctx, "bootstrap admin created", slog.String("user_id", user.ID))
	return nil
}
