package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/linemk/shop-orders/internal/app"
	"github.com/linemk/shop-orders/internal/app/handlers"
	"github.com/linemk/shop-orders/internal/domain/models"
	"github.com/linemk/shop-orders/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenResolver пропускает запросы с заголовком Authorization: Bearer <id>
type tokenResolver struct{}

func (tokenResolver) Resolve(r *http.Request) (*models.Principal, error) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) {
		return nil, errors.New("unauthenticated")
	}
	id := h[len(prefix):]
	return &models.Principal{ID: id, Role: models.RoleCustomer}, nil
}

type stubAuth struct{}

func (stubAuth) Login(context.Context, string, string) (*service.LoginResult, error) {
	return &service.LoginResult{Token: "jwt", SessionID: "sess"}, nil
}

func (stubAuth) Logout(context.Context, string) error { return nil }

// stubOrders отвечает заказом, в котором видно, кто и какой заказ запросил
type stubOrders struct {
	guestCreated bool
	deleted      string
}

func (s *stubOrders) Create(_ context.Context, p *models.Principal, _ service.CreateOrderInput) (*models.Order, error) {
	s.guestCreated = p == nil
	return &models.Order{ID: "new", Status: models.StatusPending}, nil
}

func (s *stubOrders) Get(_ context.Context, p models.Principal, id string) (*models.Order, error) {
	if id == "missing" {
		return nil, service.ErrNotFound
	}
	return &models.Order{ID: id, UserID: &p.ID}, nil
}

func (s *stubOrders) List(context.Context, models.Principal, service.OrderQuery) (*service.OrderPage, error) {
	return &service.OrderPage{Orders: []service.OrderView{}, Page: 1, Limit: 20}, nil
}

func (s *stubOrders) Update(_ context.Context, _ models.Principal, id string, _ service.UpdateCommand) (*models.Order, error) {
	return &models.Order{ID: id, Status: models.StatusCancellationRequested}, nil
}

func (s *stubOrders) Delete(_ context.Context, _ models.Principal, id string) error {
	s.deleted = id
	return nil
}

func (s *stubOrders) StockMovements(context.Context, models.Principal, string) ([]*models.StockMovement, error) {
	return []*models.StockMovement{{OrderID: "o1", ProductCode: "P1", Delta: -2, Direction: models.DirectionAdd}}, nil
}

func newTestRouter(orders *stubOrders) http.Handler {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return app.NewRouter(log, app.RouterDeps{
		Auth:     stubAuth{},
		Orders:   orders,
		Resolver: tokenResolver{},
		Cookie:   handlers.SessionCookie{Name: "session_id", TTL: time.Hour},
		Health:   map[string]handlers.HealthCheck{"postgres": func(context.Context) error { return nil }},
		Timeout:  time.Second,
	})
}

func do(t *testing.T, h http.Handler, method, url, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, bytes.NewBufferString(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_ProtectedRoutesRequirePrincipal(t *testing.T) {
	router := newTestRouter(&stubOrders{})

	for _, tc := range []struct{ method, url string }{
		{http.MethodGet, "/api/orders"},
		{http.MethodGet, "/api/orders/o1"},
		{http.MethodPatch, "/api/orders/o1"},
		{http.MethodDelete, "/api/orders/o1"},
		{http.MethodGet, "/api/orders/o1/stock-movements"},
	} {
		rr := do(t, router, tc.method, tc.url, "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", tc.method, tc.url)
	}
}

func TestRouter_GuestCanCreateOrder(t *testing.T) {
	orders := &stubOrders{}
	router := newTestRouter(orders)

	rr := do(t, router, http.MethodPost, "/api/orders", "", `{"items":[{"productCode":"P1","quantity":1}]}`)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.True(t, orders.guestCreated)

	rr = do(t, router, http.MethodPost, "/api/orders", "7", `{"items":[{"productCode":"P1","quantity":1}]}`)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.False(t, orders.guestCreated)
}

func TestRouter_OrderRoutes(t *testing.T) {
	orders := &stubOrders{}
	router := newTestRouter(orders)

	rr := do(t, router, http.MethodGet, "/api/orders/o1", "7", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var order models.Order
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&order))
	assert.Equal(t, "o1", order.ID)
	require.NotNil(t, order.UserID)
	assert.Equal(t, "7", *order.UserID)

	rr = do(t, router, http.MethodGet, "/api/orders/missing", "7", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, http.MethodPatch, "/api/orders/o1", "7", `{"action":"request_cancellation","cancellationReason":"late"}`)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodGet, "/api/orders/o1/stock-movements", "1", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodDelete, "/api/orders/o1", "1", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "o1", orders.deleted)

	rr = do(t, router, http.MethodGet, "/api/orders?page=1", "7", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_AuthAndHealth(t *testing.T) {
	router := newTestRouter(&stubOrders{})

	rr := do(t, router, http.MethodPost, "/api/auth", "", `{"username":"jan@example.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"token":"jwt"}`, rr.Body.String())

	rr = do(t, router, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}
