package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/authgate/internal/models"
	"github.com/iudanet/authgate/internal/server/guard"
	"github.com/iudanet/authgate/internal/server/handlers"
)

// AuthMiddleware создает middleware для проверки bearer токена.
// При успехе identity пользователя кладется в контекст запроса.
func AuthMiddleware(logger *slog.Logger, g *guard.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			identity, err := g.Authenticate(ctx, r.Header)
			if err != nil {
				switch {
				case errors.Is(err, guard.ErrMissingToken):
					logger.WarnContext(ctx, "missing or malformed Authorization header", slog.String("path", r.URL.Path))
					handlers.SendError(logger, w, "not authorized, token missing", http.StatusUnauthorized)
				case errors.Is(err, guard.ErrUnauthorized):
					logger.WarnContext(ctx, "invalid access token", slog.String("path", r.URL.Path))
					handlers.SendError(logger, w, "invalid or expired token", http.StatusUnauthorized)
				default:
					logger.ErrorContext(ctx, "failed to authenticate request", slog.Any("error", err))
					handlers.SendError(logger, w, "internal server error", http.StatusInternalServerError)
				}
				return
			}

			logger.DebugContext(ctx, "user authenticated",
				slog.String("user_id", identity.ID),
				slog.String("role", string(identity.Role)))

			// Передаем запрос дальше с обновленным контекстом
			next.ServeHTTP(w, r.WithContext(guard.WithIdentity(ctx, identity)))
		})
	}
}

// RequireRoles создает middleware, пропускающий только пользователей с ролью из roles.
// Должен стоять после AuthMiddleware. Без ролей запрещает доступ всем.
func RequireRoles(logger *slog.Logger, g *guard.Guard, roles ...models.Role) func(http.Handler) http.Handler {
	allowed := guard.NewRoleSet(roles...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// identity может отсутствовать, если middleware подключен без AuthMiddleware
			identity, _ := guard.IdentityFromContext(ctx)
			if err := g.Authorize(identity, allowed); err != nil {
				attrs := []any{slog.String("path", r.URL.Path)}
				if identity != nil {
					attrs = append(attrs, slog.String("user_id", identity.ID), slog.String("role", string(identity.Role)))
				}
				logger.WarnContext(ctx, "access denied", attrs...)
				handlers.SendError(logger, w, "access denied", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
