// Package identity resolves the calling user for API requests. There is no
// password flow: the client presents its user id as a Bearer token or in the
// X-User-ID header, the middleware upserts the account and stashes it in the
// request context. Real credential verification sits in front of this
// service.
package identity

import (
	"context"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/pvpbtc/btcbattle/internal/store"
	"github.com/pvpbtc/btcbattle/pkg/types"
	"go.uber.org/zap"
)

type contextKey struct{}

// UserFromContext returns the authenticated user, or nil for anonymous
// requests.
func UserFromContext(ctx context.Context) *types.User {
	u, _ := ctx.Value(contextKey{}).(*types.User)
	return u
}

// ContextWithUser returns a context carrying the user. Exported for handler
// tests.
func ContextWithUser(ctx context.Context, u *types.User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// Middleware holds the identity resolution dependencies.
type Middleware struct {
	users  store.UserStore
	logger *zap.Logger
}

// Config holds middleware configuration.
type Config struct {
	Users  store.UserStore
	Logger *zap.Logger
}

// NewMiddleware creates an identity middleware.
func NewMiddleware(cfg *Config) *Middleware {
	return &Middleware{
		users:  cfg.Users,
		logger: cfg.Logger,
	}
}

// Resolve attaches the calling user to the request context when credentials
// are present. Requests without credentials pass through anonymously;
// handlers that need a user enforce it with Require.
func (m *Middleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := ExtractUserID(r)
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		u, err := m.users.UpsertUser(r.Context(), &types.User{
			ID:        userID,
			Username:  strings.TrimSpace(r.Header.Get("X-Username")),
			XUsername: strings.TrimSpace(r.Header.Get("X-X-Username")),
		})
		if err != nil {
			m.logger.Error("identity-upsert-failed",
				zap.String("user_id", userID),
				zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "identity unavailable")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), u)))
	})
}

// Require rejects anonymous requests with 401.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "missing authentication token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractUserID looks for a user id in the Authorization header (Bearer
// scheme) or in the X-User-ID header.
func ExtractUserID(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if id := r.Header.Get("X-User-ID"); id != "" {
		return strings.TrimSpace(id)
	}

	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
