package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/authgate/internal/models"
	"github.com/iudanet/authgate/pkg/api"
)

// SendJSON отправляет JSON ответ
func SendJSON(logger *slog.Logger, w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// SendError отправляет JSON ответ с ошибкой
func SendError(logger *slog.Logger, w http.ResponseWriter, message string, statusCode int) {
	resp := api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	SendJSON(logger, w, resp, statusCode)
}

func toAPIUser(identity *models.Identity) api.User {
	return api.User{
		ID:        identity.ID,
		Name:      identity.Name,
		Email:     identity.Email,
		Role:      string(identity.Role),
		CreatedAt: identity.CreatedAt,
		UpdatedAt: identity.UpdatedAt,
		LastLogin: identity.LastLogin,
	}
}
