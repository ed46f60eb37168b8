package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/linemk/shop-orders/internal/service"
)

var validate = validator.New()

// ErrorResponse - тело ответа при ошибке
type ErrorResponse struct {
	Error   string               `json:"error"`
	Message string               `json:"message"`
	Issues  []service.StockIssue `json:"issues,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func badRequest(w http.ResponseWriter, logger *slog.Logger, message string) {
	writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Error: service.ReasonInvalidRequest, Message: message})
}

// writeError переводит ошибку сервиса в HTTP-ответ
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Error: vErr.Reason, Message: vErr.Message, Issues: vErr.Issues})
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, service.ErrInvalidCredentials):
		writeJSON(w, logger, http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: "authentication required"})
	case errors.Is(err, service.ErrForbidden):
		writeJSON(w, logger, http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: "not allowed to access this order"})
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, logger, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "order not found"})
	case errors.Is(err, service.ErrConflict):
		writeJSON(w, logger, http.StatusConflict, ErrorResponse{Error: "conflict", Message: "order status changed, reload and retry"})
	default:
		logger.Error("request failed", slog.Any("error", err))
		writeJSON(w, logger, http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "internal server error"})
	}
}
