package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const scopeKey contextKey = "scope"

// defaultScope is used when auth is disabled and the caller sends no
// X-Scope header.
const defaultScope = "default"

// scopeFrom returns the request's ownership scope.
func scopeFrom(ctx context.Context) string {
	if s, ok := ctx.Value(scopeKey).(string); ok && s != "" {
		return s
	}
	return defaultScope
}

// scopeAuth resolves the caller's scope. With a JWT secret configured it
// requires a valid HS256 bearer token and takes the subject claim as the
// scope; without one it trusts the X-Scope header (development mode).
func (h *Handler) scopeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.jwtSecret == "" {
			scope := r.Header.Get("X-Scope")
			if scope == "" {
				scope = defaultScope
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), scopeKey, scope)))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return []byte(h.jwtSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}

		subject, err := token.Claims.GetSubject()
		if err != nil || subject == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "token has no subject"})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), scopeKey, subject)))
	})
}

// rateLimit applies the per-scope limiter. Limiter errors fail open: losing
// Redis should not take the API down.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		scope := scopeFrom(r.Context())
		allowed, err := h.limiter.Allow(r.Context(), scope)
		if err != nil {
			h.logger.Warn("rate limiter error", zap.String("scope", scope), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
