// Package token issues and verifies signed, time-limited identity tokens.
//
// Tokens are HS256 JWTs carrying the user id. They are stateless: a token
// stays valid until it expires or the signing secret changes.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Ошибки проверки токена. Наружу из guard они не выходят.
var (
	// ErrMalformed токен не удалось разобрать или в нем нет обязательных полей
	ErrMalformed = errors.New("token is malformed")

	// ErrSignatureInvalid подпись не соответствует секрету
	ErrSignatureInvalid = errors.New("token signature is invalid")

	// ErrExpired срок действия токена истек
	ErrExpired = errors.New("token is expired")
)

const (
	// DefaultTTL время жизни токена по умолчанию
	DefaultTTL = time.Hour
	// DefaultIssuer значение claim "iss" по умолчанию
	DefaultIssuer = "authgate"
)

// Claims представляет JWT claims токена доступа
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Config содержит конфигурацию для Service
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// Option настраивает Service
type Option func(*Service)

// WithClock подменяет источник текущего времени (для тестов)
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service выпускает и проверяет токены. Безопасен для конкурентного использования.
type Service struct {
	now    func() time.Time
	parser *jwt.Parser
	issuer string
	secret []byte
	ttl    time.Duration
}

// NewService создает Service. Пустой секрет или неположительный TTL - ошибка.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("token secret cannot be empty")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", cfg.TTL)
	}

	s := &Service{
		secret: append([]byte(nil), cfg.Secret...),
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	if s.issuer == "" {
		s.issuer = DefaultIssuer
	}

	for _, opt := range opts {
		opt(s)
	}

	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)

	return s, nil
}

// TTL возвращает время жизни выпускаемых токенов
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue создает новый токен для userID.
// Возвращает токен и его время жизни в секундах.
func (s *Service) Issue(userID string) (string, int64, error) {
	if userID == "" {
		return "", 0, fmt.Errorf("user id cannot be empty")
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, int64(s.ttl.Seconds()), nil
}

// Verify проверяет токен и возвращает user id из него.
//
// Срок действия проверяется до подписи, по неподтвержденным claims,
// поэтому просроченный токен всегда дает ErrExpired, даже с неверной подписью.
func (s *Service) Verify(tokenString string) (string, error) {
	unverified := &Claims{}
	if _, _, err := s.parser.ParseUnverified(tokenString, unverified); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if unverified.ExpiresAt == nil {
		return "", fmt.Errorf("%w: missing exp claim", ErrMalformed)
	}
	if !s.now().Before(unverified.ExpiresAt.Time) {
		return "", ErrExpired
	}

	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		// Проверяем что используется правильный алгоритм подписи
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", ErrSignatureInvalid
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrExpired
		default:
			return "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	if claims.UserID == "" {
		return "", fmt.Errorf("%w: missing user id", ErrMalformed)
	}

	return claims.UserID, nil
}
