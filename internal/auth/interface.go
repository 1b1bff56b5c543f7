package auth

import (
	"context"
	"net/http"
)

type contextKey string

var authCtxKey contextKey = "auth"

// AuthContext identifies the calling user and, when the client sends one,
// the device it is calling from. The device identifier is what the role
// resolver compares against an alarm's owner-device binding.
type AuthContext struct {
	AuthMethod string
	UserName   string
	DeviceID   string
}

func NewContext(ctx context.Context, a *AuthContext) context.Context {
	return context.WithValue(ctx, authCtxKey, a)
}

func FromContext(ctx context.Context) (*AuthContext, bool) {
	a, ok := ctx.Value(authCtxKey).(*AuthContext)
	return a, ok
}

// Abstracts the authentication backend for the server.
type AuthProvider interface {
	// Returns HTTP middleware for performing authentication.
	Middleware() func(http.Handler) http.Handler
}
