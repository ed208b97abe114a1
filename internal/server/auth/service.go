// Package auth implements registration, login and profile lookup on top of
// the credential store and the token service.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/authgate/internal/crypto"
	"github.com/iudanet/authgate/internal/models"
	"github.com/iudanet/authgate/internal/server/storage"
	"github.com/iudanet/authgate/internal/validation"
)

var (
	// ErrDuplicateEmail email уже зарегистрирован
	ErrDuplicateEmail = errors.New("email already exists")

	// ErrInvalidCredentials неизвестный email или неверный пароль.
	// Оба случая намеренно неразличимы для вызывающего.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrProfileNotFound запись пользователя удалена после аутентификации
	ErrProfileNotFound = errors.New("profile not found")

	// ErrInvalidInput входные данные не прошли валидацию
	ErrInvalidInput = errors.New("invalid input")
)

// TokenIssuer выпускает токен доступа для пользователя
type TokenIssuer interface {
	Issue(userID string) (token string, expiresIn int64, err error)
}

// PasswordHasher хеширует и проверяет пароли
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) error
}

// RegisterParams входные данные регистрации.
// Пустая Role заменяется ролью по умолчанию.
type RegisterParams struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
}

// Token результат успешного входа
type Token struct {
	AccessToken string
	ExpiresIn   int64 // секунды
}

// Option настраивает Service
type Option func(*Service)

// WithDefaultRole задает роль, назначаемую при регистрации без явной роли
func WithDefaultRole(role models.Role) Option {
	return func(s *Service) {
		s.defaultRole = role
	}
}

// WithPasswordHasher подменяет алгоритм хеширования паролей
func WithPasswordHasher(h PasswordHasher) Option {
	return func(s *Service) {
		s.hasher = h
	}
}

// WithClock подменяет источник текущего времени
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service регистрирует пользователей, выпускает токены и отдает профиль
type Service struct {
	logger      *slog.Logger
	users       storage.UserStorage
	tokens      TokenIssuer
	hasher      PasswordHasher
	now         func() time.Time
	dummyHash   string
	defaultRole models.Role
	dummyOnce   sync.Once
}

// NewService создает сервис аутентификации
func NewService(logger *slog.Logger, users storage.UserStorage, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		logger:      logger,
		users:       users,
		tokens:      tokens,
		hasher:      crypto.NewHasher(crypto.DefaultParams),
		now:         time.Now,
		defaultRole: models.RoleUser,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register создает нового пользователя.
// Email сравнивается как есть, без нормализации регистра.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*models.User, error) {
	if err := validation.ValidateEmail(params.Email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	// Занятый email отклоняется до проверки остальных полей
	_, err := s.users.GetUserByEmail(ctx, params.Email)
	switch {
	case err == nil:
		s.logger.WarnContext(ctx, "registration rejected: email already exists")
		return nil, ErrDuplicateEmail
	case !errors.Is(err, storage.ErrUserNotFound):
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	if err := validateRegister(params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := params.Role
	if role == "" {
		role = s.defaultRole
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.New().String(),
		Name:         params.Name,
		Email:        params.Email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		// Гонка двух регистраций: уникальный индекс сработал после проверки
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			s.logger.WarnContext(ctx, "registration rejected: email already exists")
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)))

	return user, nil
}

// Login проверяет учетные данные и выпускает токен.
// Неизвестный email и неверный пароль дают один и тот же ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*Token, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// Выравниваем время ответа с веткой проверки пароля
			_ = s.hasher.Verify(password, s.dummy())
			s.logger.WarnContext(ctx, "login failed: user not found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.hasher.Verify(password, user.PasswordHash); err != nil {
		if errors.Is(err, crypto.ErrPasswordMismatch) {
			s.logger.WarnContext(ctx, "login failed: invalid password", slog.String("user_id", user.ID))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}

	accessToken, expiresIn, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		// Не критичная ошибка, логируем но не прерываем
		s.logger.WarnContext(ctx, "failed to update last login", slog.Any("error", err))
	}

	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))

	return &Token{
		AccessToken: accessToken,
		ExpiresIn:   expiresIn,
	}, nil
}

// Profile перечитывает запись пользователя и возвращает ее без хеша пароля.
// ErrProfileNotFound, если запись удалена после аутентификации запроса.
func (s *Service) Profile(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	if identity == nil {
		return nil, fmt.Errorf("identity is required")
	}

	user, err := s.users.GetUserByID(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			s.logger.WarnContext(ctx, "profile requested for deleted user", slog.String("user_id", identity.ID))
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user.Identity(), nil
}

// dummy возвращает хеш случайного пароля для неизвестных email
func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		buf := make([]byte, 16)
		_, _ = rand.Read(buf)
		hash, err := s.hasher.Hash(hex.EncodeToString(buf))
		if err != nil {
			s.logger.Error("failed to prepare dummy password hash", slog.Any("error", err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func validateRegister(params RegisterParams) error {
	if err := validation.ValidateName(params.Name); err != nil {
		return err
	}
	if err := validation.ValidatePassword(params.Password); err != nil {
		return err
	}
	if params.Role != "" {
		if err := validation.ValidateRole(string(params.Role)); err != nil {
			return err
		}
	}
	return nil
}
