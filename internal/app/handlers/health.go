package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthCheck - проверка одной зависимости (БД, Redis)
type HealthCheck func(ctx context.Context) error

// HealthHandler обрабатывает GET /healthz
func HealthHandler(log *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.HealthHandler"
		logger := log.With(slog.String("op", op))

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("health check failed", slog.String("check", name), slog.Any("error", err))
				result[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			result[name] = "up"
		}
		writeJSON(w, logger, status, result)
	}
}
