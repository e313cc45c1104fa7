package ratelimit

import (
	"context"

	"homework-gateway/middleware/ratelimit/domain"
)

type ctxKey struct{}

// WithKey guarda a chave do cliente no contexto.
func WithKey(ctx context.Context, key domain.Key) context.Context {
	return context.WithValue(ctx, ctxKey{}, key)
}

// KeyFromContext devolve a chave usada pelo middleware (ok=false se ausente).
func KeyFromContext(ctx context.Context) (domain.Key, bool) {
	k, ok := ctx.Value(ctxKey{}).(domain.Key)
	return k, ok && k != ""
}
