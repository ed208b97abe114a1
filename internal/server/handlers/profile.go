package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/authgate/internal/server/auth"
	"github.com/iudanet/authgate/internal/server/guard"
	"github.com/iudanet/authgate/pkg/api"
)

// ProfileHandler отдает данные аутентифицированного пользователя
type ProfileHandler struct {
	logger *slog.Logger
	auth   Authenticator
}

// NewProfileHandler создает новый handler профиля
func NewProfileHandler(logger *slog.Logger, authenticator Authenticator) *ProfileHandler {
	return &ProfileHandler{
		logger: logger,
		auth:   authenticator,
	}
}

// Profile обрабатывает GET /api/v1/profile
// Требует AuthMiddleware: identity берется из контекста
func (h *ProfileHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := guard.IdentityFromContext(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "profile handler reached without identity in context")
		SendError(h.logger, w, "not authorized, token missing", http.StatusUnauthorized)
		return
	}

	profile, err := h.auth.Profile(ctx, identity)
	if err != nil {
		if errors.Is(err, auth.ErrProfileNotFound) {
			SendError(h.logger, w, "user not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to load profile", slog.Any("error", err))
		SendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.ProfileResponse{
		Success: true,
		User:    toAPIUser(profile),
	}

	SendJSON(h.logger, w, resp, http.StatusOK)
}

// Admin обрабатывает GET /api/v1/admin
// Доступ ограничивается RequireRoles до вызова handler'а
func (h *ProfileHandler) Admin(w http.ResponseWriter, r *http.Request) {
	if identity, ok := guard.IdentityFromContext(r.Context()); ok {
		h.logger.InfoContext(r.Context(), "admin access granted", slog.String("user_id", identity.ID))
	}

	SendJSON(h.logger, w, api.MessageResponse{Message: "Admin Access Granted"}, http.StatusOK)
}
