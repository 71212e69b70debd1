package client

import (
	"context"
	"sync"
)

type contextKey string

const tokenKey contextKey = "bearer_token"

// TokenSource supplies the bearer token for outgoing requests
type TokenSource interface {
	Token(ctx context.Context) string
}

// WithToken attaches a request-scoped bearer token to ctx
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromContext extracts the token set by WithToken
func TokenFromContext(ctx context.Context) string {
	token, ok := ctx.Value(tokenKey).(string)
	if !ok {
		return ""
	}
	return token
}

// TokenCache prefers the request-scoped token and otherwise falls back to
// the last token it was given. Background syncs use the fallback.
type TokenCache struct {
	mu    sync.RWMutex
	token string
}

// NewTokenCache creates a cache seeded with initial
func NewTokenCache(initial string) *TokenCache {
	return &TokenCache{token: initial}
}

// Set replaces the fallback token
func (c *TokenCache) Set(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token implements TokenSource
func (c *TokenCache) Token(ctx context.Context) string {
	if token := TokenFromContext(ctx); token != "" {
		return token
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}
