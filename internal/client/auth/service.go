// Package auth управляет клиентской сессией: регистрация, вход,
// хранение токена и запросы к защищенным эндпоинтам от имени пользователя.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/authgate/internal/client/api"
	"github.com/iudanet/authgate/internal/client/storage"
	"github.com/iudanet/authgate/internal/validation"
	pkgapi "github.com/iudanet/authgate/pkg/api"
)

var (
	// ErrNotAuthenticated локальная сессия отсутствует
	ErrNotAuthenticated = errors.New("not authenticated, please run 'authgate login' first")

	// ErrSessionExpired токен истек или отклонен сервером
	ErrSessionExpired = errors.New("session expired, please run 'authgate login' again")
)

//go:generate moq -out api_client_mock.go . APIClient

// APIClient HTTP API сервера аутентификации
type APIClient interface {
	Register(ctx context.Context, req pkgapi.RegisterRequest) (*pkgapi.RegisterResponse, error)
	Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.LoginResponse, error)
	Profile(ctx context.Context, token string) (*pkgapi.ProfileResponse, error)
	Admin(ctx context.Context, token string) (*pkgapi.MessageResponse, error)
	Health(ctx context.Context) (*pkgapi.HealthResponse, error)
}

// Option настраивает Service
type Option func(*Service)

// WithClock подменяет источник текущего времени (для тестов)
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service предоставляет функции авторизации на стороне клиента
type Service struct {
	logger    *slog.Logger
	apiClient APIClient
	store     storage.AuthStorage
	now       func() time.Time
}

// NewService создает новый сервис авторизации
func NewService(logger *slog.Logger, apiClient APIClient, store storage.AuthStorage, opts ...Option) *Service {
	s := &Service{
		logger:    logger,
		apiClient: apiClient,
		store:     store,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register регистрирует нового пользователя. Сессия не создается.
func (s *Service) Register(ctx context.Context, name, email, password string) (*pkgapi.User, error) {
	// Валидация входных данных до обращения к серверу
	if err := validation.ValidateName(name); err != nil {
		return nil, fmt.Errorf("invalid name: %w", err)
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}

	resp, err := s.apiClient.Register(ctx, pkgapi.RegisterRequest{
		Name:     name,
		Email:    email,
		Password: password,
	})
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}

	return &resp.User, nil
}

// Login выполняет аутентификацию и сохраняет сессию локально.
// Предыдущая сессия заменяется.
func (s *Service) Login(ctx context.Context, email, password string) (*storage.AuthData, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}

	resp, err := s.apiClient.Login(ctx, pkgapi.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	authData := &storage.AuthData{
		Email:       email,
		AccessToken: resp.AccessToken,
		ExpiresAt:   s.now().Unix() + resp.ExpiresIn,
	}

	// ID и роль нужны только для отображения, их отсутствие не мешает входу
	profile, err := s.apiClient.Profile(ctx, resp.AccessToken)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to fetch profile after login", slog.Any("error", err))
	} else {
		authData.UserID = profile.User.ID
		authData.Role = profile.User.Role
	}

	if err := s.store.SaveAuth(ctx, authData); err != nil {
		return nil, fmt.Errorf("failed to save auth data: %w", err)
	}

	return authData, nil
}

// Logout удаляет локальную сессию. Сервер не хранит сессий, уведомлять его не нужно.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.DeleteAuth(ctx); err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return ErrNotAuthenticated
		}
		return fmt.Errorf("failed to delete local auth data: %w", err)
	}
	return nil
}

// Session возвращает сохраненную сессию.
// ErrNotAuthenticated, если сессии нет; ErrSessionExpired вместе с данными, если токен истек.
func (s *Service) Session(ctx context.Context) (*storage.AuthData, error) {
	authData, err := s.store.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("failed to get auth data: %w", err)
	}

	if authData.Expired(s.now()) {
		return authData, ErrSessionExpired
	}
	return authData, nil
}

// Profile запрашивает профиль текущего пользователя
func (s *Service) Profile(ctx context.Context) (*pkgapi.User, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.apiClient.Profile(ctx, token)
	if err != nil {
		return nil, s.handleAuthError(ctx, err)
	}
	return &resp.User, nil
}

// Admin обращается к эндпоинту администратора
func (s *Service) Admin(ctx context.Context) (string, error) {
	token, err := s.token(ctx)
	if err != nil {
		return "", err
	}

	resp, err := s.apiClient.Admin(ctx, token)
	if err != nil {
		return "", s.handleAuthError(ctx, err)
	}
	return resp.Message, nil
}

// Health проверяет доступность сервера. Сессия не нужна.
func (s *Service) Health(ctx context.Context) (*pkgapi.HealthResponse, error) {
	resp, err := s.apiClient.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("server is unavailable: %w", err)
	}
	return resp, nil
}

func (s *Service) token(ctx context.Context) (string, error) {
	authData, err := s.Session(ctx)
	if err != nil {
		return "", err
	}
	return authData.AccessToken, nil
}

// handleAuthError удаляет сессию, которую сервер больше не принимает
func (s *Service) handleAuthError(ctx context.Context, err error) error {
	if !errors.Is(err, api.ErrUnauthorized) {
		return err
	}

	s.logger.DebugContext(ctx, "server rejected stored token, dropping session", slog.Any("error", err))
	if delErr := s.store.DeleteAuth(ctx); delErr != nil && !errors.Is(delErr, storage.ErrAuthNotFound) {
		s.logger.WarnContext(ctx, "failed to delete rejected session", slog.Any("error", delErr))
	}
	return ErrSessionExpired
}
