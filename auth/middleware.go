package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/archonhq/archon/logger"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const userContextKey contextKey = "auth_user"

// Middleware guards API routes with session token validation
type Middleware struct {
	sessions *SessionManager
	log      *zap.SugaredLogger
}

func NewMiddleware(sessions *SessionManager) *Middleware {
	return &Middleware{sessions: sessions, log: logger.Named("auth")}
}

// RequireSession rejects requests without a valid session token and puts the
// claims on the request context.
func (m *Middleware) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r)
		if token == "" {
			http.Error(w, "unauthorized: missing token", http.StatusUnauthorized)
			return
		}
		claims, err := m.sessions.ValidateToken(token)
		if err != nil {
			m.log.Debugw("session token validation failed", "error", err)
			http.Error(w, "unauthorized: invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userContextKey, claims)))
	}
}

// UserFromContext returns the authenticated claims, nil when absent
func UserFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(userContextKey).(*Claims)
	return claims
}

func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
