package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linemk/shop-orders/internal/app/handlers"
	"github.com/linemk/shop-orders/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/shop-orders/internal/lib/logger/handlers/urllog"
	"github.com/linemk/shop-orders/internal/service"
)

// RouterDeps - всё, что нужно HTTP-слою
type RouterDeps struct {
	Auth     service.AuthServiceInterface
	Orders   service.OrderService
	Resolver jwtmiddleware.PrincipalResolver
	Cookie   handlers.SessionCookie
	Health   map[string]handlers.HealthCheck
	Timeout  time.Duration
}

func NewRouter(log *slog.Logger, deps RouterDeps) http.Handler {
	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	if deps.Timeout > 0 {
		router.Use(middleware.Timeout(deps.Timeout))
	}

	router.Get("/healthz", handlers.HealthHandler(log, deps.Health))

	// эндпоинты для аутентификации
	router.Post("/api/auth", handlers.AuthHandler(log, deps.Auth, deps.Cookie))
	router.Post("/api/logout", handlers.LogoutHandler(log, deps.Auth, deps.Cookie))

	// оформление заказа доступно и гостю
	router.With(jwtmiddleware.NewOptionalAuthMiddleware(deps.Resolver)).
		Post("/api/orders", handlers.CreateOrderHandler(log, deps.Orders))

	router.Group(func(r chi.Router) {
		r.Use(jwtmiddleware.NewAuthMiddleware(log, deps.Resolver))
		r.Get("/api/orders", handlers.ListOrdersHandler(log, deps.Orders))
		r.Route("/api/orders/{id}", func(r chi.Router) {
			r.Get("/", handlers.GetOrderHandler(log, deps.Orders))
			r.Patch("/", handlers.UpdateOrderHandler(log, deps.Orders))
			r.Delete("/", handlers.DeleteOrderHandler(log, deps.Orders))
			r.Get("/stock-movements", handlers.StockMovementsHandler(log, deps.Orders))
		})
	})

	return router
}
