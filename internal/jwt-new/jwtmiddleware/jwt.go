package jwtmiddleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/linemk/shop-orders/internal/domain/models"
)

type contextKey string

const PrincipalKey contextKey = "principal"

// PrincipalResolver определяет пользователя по запросу (сессия или bearer-токен).
type PrincipalResolver interface {
	Resolve(r *http.Request) (*models.Principal, error)
}

// NewAuthMiddleware пропускает только запросы с определённым пользователем, иначе 401.
func NewAuthMiddleware(log *slog.Logger, resolver PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := resolver.Resolve(r)
			if err != nil {
				log.Debug("request rejected: no principal", slog.String("url", r.URL.Path), slog.Any("error", err))
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), *principal)))
		})
	}
}

// NewOptionalAuthMiddleware кладёт пользователя в контекст, если он есть; гость проходит дальше.
func NewOptionalAuthMiddleware(resolver PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if principal, err := resolver.Resolve(r); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), *principal))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthenticated",
		"message": "authentication required",
	})
}

// WithPrincipal кладёт пользователя в контекст.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// FromContext извлекает пользователя из контекста.
func FromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(models.Principal)
	return p, ok
}
