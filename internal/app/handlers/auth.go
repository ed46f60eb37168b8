package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/linemk/shop-orders/internal/service"
)

// AuthRequest представляет структуру запроса для аутентификации с тегами валидации
type AuthRequest struct {
	Username string `json:"username" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// AuthResponse представляет структуру ответа с JWT-токеном
type AuthResponse struct {
	Token string `json:"token"`
}

// SessionCookie - параметры cookie с идентификатором сессии
type SessionCookie struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

func (c SessionCookie) issue(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c SessionCookie) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// AuthHandler – HTTP-обработчик для аутентификации: выдаёт токен и открывает сессию
func AuthHandler(log *slog.Logger, authService service.AuthServiceInterface, cookie SessionCookie) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AuthHandler"
		logger := log.With(slog.String("op", op))

		var req AuthRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			badRequest(w, logger, "invalid request")
			return
		}

		// Валидация структуры запроса с использованием validator
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			badRequest(w, logger, "validation error")
			return
		}

		res, err := authService.Login(r.Context(), req.Username, req.Password)
		if errors.Is(err, service.ErrInvalidCredentials) {
			logger.Info("login rejected", slog.String("username", req.Username))
			writeJSON(w, logger, http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: "invalid credentials"})
			return
		}
		if err != nil {
			// сбой хранилища или подписи токена отдаётся как 500
			writeError(w, logger, err)
			return
		}

		if res.SessionID != "" {
			cookie.issue(w, res.SessionID)
		}
		writeJSON(w, logger, http.StatusOK, AuthResponse{Token: res.Token})
	}
}

// LogoutHandler закрывает сессию из cookie; без cookie просто отвечает 204
func LogoutHandler(log *slog.Logger, authService service.AuthServiceInterface, cookie SessionCookie) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.LogoutHandler"
		logger := log.With(slog.String("op", op))

		if c, err := r.Cookie(cookie.Name); err == nil && c.Value != "" {
			if err := authService.Logout(r.Context(), c.Value); err != nil {
				writeError(w, logger, err)
				return
			}
		}
		cookie.clear(w)
		w.WriteHeader(http.StatusNoContent)
	}
}
