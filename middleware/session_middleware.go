package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/corbado-session-sdk/observability"
	"github.com/upb/corbado-session-sdk/session"
	"github.com/upb/corbado-session-sdk/utils"
)

// SessionValidator validates short-session tokens. *session.Validator implements it.
type SessionValidator interface {
	ValidateToken(ctx context.Context, token string) session.Result
}

// SessionMiddleware authenticates requests by their Corbado short-session token
type SessionMiddleware struct {
	validator  SessionValidator
	cookieName string
	logger     observability.Logger
}

// NewSessionMiddleware creates a new SessionMiddleware reading the token from the
// Authorization header or from cookieName.
func NewSessionMiddleware(validator SessionValidator, cookieName string, logger *zap.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		validator:  validator,
		cookieName: cookieName,
		logger:     observability.NewContextLogger(logger),
	}
}

// RequireSession rejects requests without a valid session token with 401
func (m *SessionMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := m.ExtractToken(r)
		if token == "" {
			m.logger.Debug(ctx, "missing session token")
			_ = utils.WriteUnauthorized(w, "Missing session token", nil)
			return
		}

		result := m.validator.ValidateToken(ctx, token)
		user, ok := result.User()
		if !ok {
			m.logger.Info(ctx, "session rejected",
				zap.String("kind", result.Kind().String()))
			_ = utils.WriteUnauthorized(w, "Invalid or expired session", map[string]interface{}{
				"kind": result.Kind().String(),
			})
			return
		}

		m.logger.Debug(ctx, "session authenticated",
			zap.String("user_id", user.ID))

		next.ServeHTTP(w, r.WithContext(WithUser(ctx, user)))
	})
}

// OptionalSession adds the user to the context when the request carries a valid session
// and passes every request through.
func (m *SessionMiddleware) OptionalSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.ExtractToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		if user, ok := m.validator.ValidateToken(ctx, token).User(); ok {
			ctx = WithUser(ctx, user)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractToken returns the session token from the Authorization header ("Bearer TOKEN") or
// the short-session cookie. The header takes precedence.
func (m *SessionMiddleware) ExtractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	if m.cookieName == "" {
		return ""
	}
	if cookie, err := r.Cookie(m.cookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
