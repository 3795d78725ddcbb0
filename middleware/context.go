package middleware

import (
	"context"

	"github.com/upb/corbado-session-sdk/observability"
	"github.com/upb/corbado-session-sdk/session"
)

// Context key type to avoid collisions
type contextKey string

// UserKey is the context key for the authenticated session user
const UserKey contextKey = "session_user"

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	return observability.RequestIDFromContext(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return observability.WithRequestID(ctx, requestID)
}

// GetUserFromContext retrieves the authenticated user from context
func GetUserFromContext(ctx context.Context) (session.User, bool) {
	if val := ctx.Value(UserKey); val != nil {
		if user, ok := val.(session.User); ok {
			return user, true
		}
	}
	return session.User{}, false
}

// WithUser adds the authenticated user to the context
func WithUser(ctx context.Context, user session.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}
