package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/shop-orders/internal/domain/models"
	"github.com/linemk/shop-orders/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/shop-orders/internal/service"
	"github.com/shopspring/decimal"
)

type LineItemRequest struct {
	ProductCode  string                `json:"productCode" validate:"required"`
	Name         string                `json:"name"`
	Quantity     int                   `json:"quantity" validate:"required,min=1"`
	Price        decimal.Decimal       `json:"price"`
	SelectedSize string                `json:"selectedSize"`
	IsCombo      bool                  `json:"isCombo"`
	Products     []models.ComboProduct `json:"products"`
}

type PaymentRequest struct {
	Method            string `json:"method"`
	TransactionID     string `json:"transactionId"`
	PaymentScreenshot string `json:"paymentScreenshot"`
}

// CreateOrderRequest - тело POST /api/orders
type CreateOrderRequest struct {
	Items        []LineItemRequest `json:"items" validate:"required,min=1,dive"`
	Payment      PaymentRequest    `json:"payment"`
	Discount     decimal.Decimal   `json:"discount"`
	ShippingCost decimal.Decimal   `json:"shippingCost"`
}

// UpdateOrderRequest - тело PATCH /api/orders/{id}; поля читаются в зависимости от action
type UpdateOrderRequest struct {
	Action             string `json:"action" validate:"required"`
	AdminNotes         string `json:"adminNotes"`
	CancellationReason string `json:"cancellationReason"`
	Approve            *bool  `json:"approve"`
	Status             string `json:"status"`
	PaymentStatus      string `json:"paymentStatus"`
}

func (r UpdateOrderRequest) command() service.UpdateCommand {
	return service.UpdateCommand{
		Action:        service.UpdateAction(r.Action),
		AdminNotes:    r.AdminNotes,
		Reason:        r.CancellationReason,
		Approve:       r.Approve,
		Status:        models.OrderStatus(r.Status),
		PaymentStatus: r.PaymentStatus,
	}
}

// decodeBody читает JSON и отвергает пустое тело
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

// CreateOrderHandler обрабатывает POST /api/orders; гость тоже может оформить заказ
func CreateOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateOrderHandler"
		logger := log.With(slog.String("op", op))

		var req CreateOrderRequest
		if err := decodeBody(r, &req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			badRequest(w, logger, "invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			badRequest(w, logger, err.Error())
			return
		}

		items := make([]models.LineItem, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, models.LineItem{
				ProductCode:  it.ProductCode,
				Name:         it.Name,
				Quantity:     it.Quantity,
				Price:        it.Price,
				SelectedSize: it.SelectedSize,
				IsCombo:      it.IsCombo,
				Products:     it.Products,
			})
		}

		var principal *models.Principal
		if p, ok := jwtmiddleware.FromContext(r.Context()); ok {
			principal = &p
		}

		order, err := orderService.Create(r.Context(), principal, service.CreateOrderInput{
			Items: items,
			Payment: models.Payment{
				Method:            req.Payment.Method,
				TransactionID:     req.Payment.TransactionID,
				PaymentScreenshot: req.Payment.PaymentScreenshot,
			},
			Discount:     req.Discount,
			ShippingCost: req.ShippingCost,
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, order)
	}
}

// GetOrderHandler обрабатывает GET /api/orders/{id}
func GetOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetOrderHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("principal not found in context")
			writeError(w, logger, service.ErrUnauthenticated)
			return
		}

		order, err := orderService.Get(r.Context(), principal, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, order)
	}
}

// ListOrdersHandler обрабатывает GET /api/orders?status=&userId=&search=&sortBy=&sortOrder=&page=&limit=
func ListOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListOrdersHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("principal not found in context")
			writeError(w, logger, service.ErrUnauthenticated)
			return
		}

		q := r.URL.Query()
		page, err := intParam(q.Get("page"))
		if err != nil {
			badRequest(w, logger, "page must be a number")
			return
		}
		limit, err := intParam(q.Get("limit"))
		if err != nil {
			badRequest(w, logger, "limit must be a number")
			return
		}
		search := q.Get("search")
		if search == "" {
			search = q.Get("searchTerm")
		}

		result, err := orderService.List(r.Context(), principal, service.OrderQuery{
			Status:    q.Get("status"),
			UserID:    q.Get("userId"),
			Search:    search,
			SortBy:    q.Get("sortBy"),
			SortOrder: q.Get("sortOrder"),
			Page:      page,
			Limit:     limit,
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, result)
	}
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// UpdateOrderHandler обрабатывает PATCH /api/orders/{id}
func UpdateOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateOrderHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("principal not found in context")
			writeError(w, logger, service.ErrUnauthenticated)
			return
		}

		var req UpdateOrderRequest
		if err := decodeBody(r, &req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			badRequest(w, logger, "invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			badRequest(w, logger, "action is required")
			return
		}

		order, err := orderService.Update(r.Context(), principal, chi.URLParam(r, "id"), req.command())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, order)
	}
}

// DeleteOrderHandler обрабатывает DELETE /api/orders/{id}
func DeleteOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.DeleteOrderHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("principal not found in context")
			writeError(w, logger, service.ErrUnauthenticated)
			return
		}

		if err := orderService.Delete(r.Context(), principal, chi.URLParam(r, "id")); err != nil {
			writeError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// StockMovementsHandler обрабатывает GET /api/orders/{id}/stock-movements
func StockMovementsHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.StockMovementsHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			writeError(w, logger, service.ErrUnauthenticated)
			return
		}

		movements, err := orderService.StockMovements(r.Context(), principal, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if movements == nil {
			movements = []*models.StockMovement{}
		}
		writeJSON(w, logger, http.StatusOK, movements)
	}
}
