package guard

import (
	"context"

	"github.com/iudanet/authgate/internal/models"
)

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity кладет identity аутентифицированного пользователя в контекст
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext извлекает identity из контекста
func IdentityFromContext(ctx context.Context) (*models.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*models.Identity)
	return identity, ok && identity != nil
}
