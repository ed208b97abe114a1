package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/authgate/internal/models"
	"github.com/iudanet/authgate/internal/server/auth"
	"github.com/iudanet/authgate/pkg/api"
)

// maxBodySize ограничение размера тела запроса
const maxBodySize = 1 << 20

// Authenticator регистрирует, аутентифицирует пользователей и отдает профиль
type Authenticator interface {
	Register(ctx context.Context, params auth.RegisterParams) (*models.User, error)
	Login(ctx context.Context, email, password string) (*auth.Token, error)
	Profile(ctx context.Context, identity *models.Identity) (*models.Identity, error)
}

// AuthHandler обрабатывает запросы регистрации и входа
type AuthHandler struct {
	logger *slog.Logger
	auth   Authenticator
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, authenticator Authenticator) *AuthHandler {
	return &AuthHandler{
		logger: logger,
		auth:   authenticator,
	}
}

// Register обрабатывает POST /api/v1/auth/register
// Регистрация нового пользователя, роль назначается по умолчанию
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Парсим request body
	var req api.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode register request", slog.Any("error", err))
		SendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.auth.Register(ctx, auth.RegisterParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			SendError(h.logger, w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, auth.ErrDuplicateEmail):
			SendError(h.logger, w, "Email already exists", http.StatusBadRequest)
		default:
			h.logger.ErrorContext(ctx, "failed to register user", slog.Any("error", err))
			SendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	resp := api.RegisterResponse{
		Message: "User registered successfully",
		User:    toAPIUser(user.Identity()),
	}

	SendJSON(h.logger, w, resp, http.StatusCreated)
}

// Login обрабатывает POST /api/v1/auth/login
// Аутентификация пользователя по email и паролю
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Парсим request body
	var req api.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode login request", slog.Any("error", err))
		SendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	token, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			SendError(h.logger, w, "Invalid credentials", http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(ctx, "failed to login user", slog.Any("error", err))
		SendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.LoginResponse{
		Message:     "Login successful",
		AccessToken: token.AccessToken,
		ExpiresIn:   token.ExpiresIn,
	}

	SendJSON(h.logger, w, resp, http.StatusOK)
}

// decodeJSON читает тело запроса в dst. Неизвестные поля и лишние данные после объекта - ошибка.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return errors.New("content type must be application/json")
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
