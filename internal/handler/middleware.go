package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/acebanks/acebank-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type contextKey string

const (
	uidKey   contextKey = "uid"
	emailKey contextKey = "email"
)

// JWTAuthMiddleware validates Bearer tokens and injects the authenticated uid
// and email into the request context.
func JWTAuthMiddleware(authSvc *service.AuthService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "missing authentication token")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "invalid token format")
				return
			}

			claims, err := authSvc.ValidateAccessToken(parts[1])
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), uidKey, claims.Sub)
			ctx = context.WithValue(ctx, emailKey, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UIDFromContext extracts the authenticated uid from context.
func UIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(uidKey).(string)
	return v
}

// EmailFromContext extracts the authenticated email from context.
func EmailFromContext(ctx context.Context) string {
	v, _ := ctx.Value(emailKey).(string)
	return v
}

// RequireOwnUID rejects requests where the {uid} path parameter does not
// match the token subject. A valid session for one user grants nothing about
// another.
func RequireOwnUID(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pathUID := chi.URLParam(r, "uid")
			tokenUID := UIDFromContext(r.Context())
			if pathUID != tokenUID {
				logger.Warn("auth: uid mismatch",
					zap.String("path", r.URL.Path),
					zap.String("token_uid", tokenUID),
				)
				writeError(w, http.StatusForbidden, "forbidden: cannot access another user's accounts")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
