// Package guard authenticates requests by their bearer token and authorizes
// the resolved identity against an explicit set of roles.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/authgate/internal/models"
	"github.com/iudanet/authgate/internal/server/storage"
)

var (
	// ErrMissingToken заголовок Authorization отсутствует или не в формате Bearer
	ErrMissingToken = errors.New("token missing")

	// ErrUnauthorized токен не прошел проверку или пользователь не найден.
	// Причина (подпись, срок, формат) наружу не раскрывается.
	ErrUnauthorized = errors.New("invalid or expired token")

	// ErrForbidden роль пользователя не входит в разрешенный набор
	ErrForbidden = errors.New("access denied")
)

// Verifier проверяет токен и возвращает user id из него
type Verifier interface {
	Verify(token string) (userID string, err error)
}

// UserGetter загружает пользователя по id
type UserGetter interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// RoleSet явный набор разрешенных ролей
type RoleSet map[models.Role]struct{}

// NewRoleSet создает набор из перечисленных ролей
func NewRoleSet(roles ...models.Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, role := range roles {
		set[role] = struct{}{}
	}
	return set
}

// Contains сообщает, входит ли роль в набор
func (s RoleSet) Contains(role models.Role) bool {
	_, ok := s[role]
	return ok
}

// Guard безопасен для конкурентного использования
type Guard struct {
	logger *slog.Logger
	tokens Verifier
	users  UserGetter
}

// New создает Guard
func New(logger *slog.Logger, tokens Verifier, users UserGetter) *Guard {
	return &Guard{
		logger: logger,
		tokens: tokens,
		users:  users,
	}
}

// Authenticate извлекает токен из заголовков и возвращает identity его владельца.
//
// ErrMissingToken если токена нет, ErrUnauthorized если токен недействителен
// или пользователь удален. Прочие ошибки хранилища возвращаются обернутыми.
func (g *Guard) Authenticate(ctx context.Context, header http.Header) (*models.Identity, error) {
	tokenString, ok := BearerToken(header)
	if !ok {
		return nil, ErrMissingToken
	}

	userID, err := g.tokens.Verify(tokenString)
	if err != nil {
		g.logger.DebugContext(ctx, "token rejected", slog.Any("error", err))
		return nil, ErrUnauthorized
	}

	user, err := g.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			g.logger.WarnContext(ctx, "token refers to unknown user", slog.String("user_id", userID))
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	return user.Identity(), nil
}

// Authorize разрешает доступ только если роль identity входит в allowed.
// Пустой набор запрещает доступ всем.
func (g *Guard) Authorize(identity *models.Identity, allowed RoleSet) error {
	if identity == nil || !allowed.Contains(identity.Role) {
		return ErrForbidden
	}
	return nil
}

// BearerToken извлекает токен из заголовка "Authorization: Bearer <token>".
// Схема сравнивается без учета регистра.
func BearerToken(header http.Header) (string, bool) {
	authHeader := header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	// Ожидаем формат: "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}
