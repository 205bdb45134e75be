package handlers

import (
	"context"

	"github.com/satonic/roomtrade/internal/services"
)

// Context keys
type contextKey string

const (
	// ClaimsKey is the key for the session token claims in the context
	ClaimsKey contextKey = "claims"
)

// NewContextWithClaims adds validated token claims to the context
func NewContextWithClaims(ctx context.Context, claims *services.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// ClaimsFromContext extracts the token claims from the context
func ClaimsFromContext(ctx context.Context) (*services.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*services.Claims)
	return claims, ok && claims != nil
}
