package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const sessionIDKey contextKey = "auth_session_id"

// SessionFromContext returns the session ID the request's token was
// scoped to, or "" when the request was not authenticated.
func SessionFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}

// Middleware validates bearer tokens when a TokenService is configured.
// With a nil service every request passes through untouched, which is
// the development default.
func Middleware(svc *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if svc == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				unauthorized(w)
				return
			}

			claims, err := svc.Validate(token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), sessionIDKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"auth_failed","message":"missing or invalid bearer token"}}`))
}
