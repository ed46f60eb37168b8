package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/linemk/shop-orders/internal/domain/models"
	"github.com/linemk/shop-orders/internal/events"
	"github.com/linemk/shop-orders/internal/storage"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

const (
	DefaultCancellationWindow = 6 * time.Hour

	defaultPageLimit = 20
	maxPageLimit     = 100
)

// CreateOrderInput - данные для оформления заказа
type CreateOrderInput struct {
	Items        []models.LineItem
	Payment      models.Payment
	Discount     decimal.Decimal
	ShippingCost decimal.Decimal
}

// OrderQuery - параметры выборки заказов, как пришли от клиента
type OrderQuery struct {
	Status    string
	UserID    string
	Search    string
	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

// OrderView - заказ в выдаче списка; Customer заполняется только для админа
type OrderView struct {
	*models.Order
	Customer *models.Customer `json:"customer,omitempty"`
}

type OrderPage struct {
	Orders     []OrderView `json:"orders"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"totalPages"`
}

type OrderService interface {
	// Create оформляет заказ; principal == nil для гостя
	Create(ctx context.Context, principal *models.Principal, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, principal models.Principal, id string) (*models.Order, error)
	List(ctx context.Context, principal models.Principal, query OrderQuery) (*OrderPage, error)
	Update(ctx context.Context, principal models.Principal, id string, cmd UpdateCommand) (*models.Order, error)
	Delete(ctx context.Context, principal models.Principal, id string) error
	StockMovements(ctx context.Context, principal models.Principal, id string) ([]*models.StockMovement, error)
}

type orderService struct {
	log       *slog.Logger
	db        *sql.DB
	orderRepo storage.OrderStorage
	userRepo  storage.UserStorage
	moveRepo  storage.StockMovementStorage
	ledger    Ledger
	publisher events.Publisher
	window    time.Duration
	now       func() time.Time
}

type OrderServiceOption func(*orderService)

// WithClock подменяет источник текущего времени
func WithClock(now func() time.Time) OrderServiceOption {
	return func(s *orderService) { s.now = now }
}

func NewOrderService(
	log *slog.Logger,
	db *sql.DB,
	orderRepo storage.OrderStorage,
	userRepo storage.UserStorage,
	moveRepo storage.StockMovementStorage,
	ledger Ledger,
	publisher events.Publisher,
	window time.Duration,
	opts ...OrderServiceOption,
) OrderService {
	if window <= 0 {
		window = DefaultCancellationWindow
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	s := &orderService{
		log:       log,
		db:        db,
		orderRepo: orderRepo,
		userRepo:  userRepo,
		moveRepo:  moveRepo,
		ledger:    ledger,
		publisher: publisher,
		window:    window,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func rollback(tx *sql.Tx, logger *slog.Logger) {
	if rbErr := tx.Rollback(); rbErr != nil {
		logger.Error("transaction rollback failed", slog.Any("error", rbErr))
	}
}

// publish отправляет событие после коммита; ошибка брокера только логируется
func (s *orderService) publish(ctx context.Context, logger *slog.Logger, evt events.Event) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), evt); err != nil {
		logger.Warn("failed to publish event", slog.String("type", evt.Type), slog.Any("error", err))
	}
}

func insufficientStock(issues []StockIssue) *ValidationError {
	return &ValidationError{
		Reason:  ReasonInsufficientStock,
		Message: "some items are out of stock",
		Issues:  issues,
	}
}

func validateItems(items []models.LineItem) error {
	if len(items) == 0 {
		return newValidationError(ReasonInvalidRequest, "order must contain at least one item")
	}
	for i, item := range items {
		if strings.TrimSpace(item.ProductCode) == "" {
			return newValidationError(ReasonInvalidRequest, fmt.Sprintf("item %d: productCode is required", i))
		}
		if item.Quantity < 1 {
			return newValidationError(ReasonInvalidRequest, fmt.Sprintf("item %d: quantity must be at least 1", i))
		}
		if item.Price.IsNegative() {
			return newValidationError(ReasonInvalidRequest, fmt.Sprintf("item %d: price must not be negative", i))
		}
	}
	return nil
}

func (s *orderService) Create(ctx context.Context, principal *models.Principal, input CreateOrderInput) (*models.Order, error) {
	const op = "service.OrderService.Create"
	logger := s.log.With(slog.String("op", op))

	if err := validateItems(input.Items); err != nil {
		return nil, err
	}
	method := strings.ToLower(strings.TrimSpace(input.Payment.Method))
	if !models.KnownPaymentMethod(method) {
		return nil, newValidationError(ReasonInvalidPaymentMethod, fmt.Sprintf("unsupported payment method %q", input.Payment.Method))
	}
	if method == "" {
		method = models.PaymentMethodCOD
	}

	subtotal := decimal.Zero
	for _, item := range input.Items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	if input.Discount.IsNegative() || input.Discount.GreaterThan(subtotal) {
		return nil, newValidationError(ReasonInvalidRequest, "discount must be between 0 and the subtotal")
	}
	if input.ShippingCost.IsNegative() {
		return nil, newValidationError(ReasonInvalidRequest, "shipping cost must not be negative")
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:          uuid.NewString(),
		OrderNumber: ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Items:       input.Items,
		Status:      models.InitialStatus(method),
		Payment: models.Payment{
			Method:            method,
			TransactionID:     input.Payment.TransactionID,
			PaymentScreenshot: input.Payment.PaymentScreenshot,
			PaymentStatus:     models.PaymentStatusPending,
		},
		Subtotal:     subtotal,
		Discount:     input.Discount,
		ShippingCost: input.ShippingCost,
		Total:        subtotal.Sub(input.Discount).Add(input.ShippingCost),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if principal != nil {
		userID := principal.ID
		order.UserID = &userID
		logger = logger.With(slog.String("userID", userID))
	}
	logger = logger.With(slog.String("orderID", order.ID))
	logger.Info("creating order", slog.Int("items", len(order.Items)), slog.String("status", string(order.Status)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	// проверка блокирует строки товаров до конца транзакции, списание после записи заказа её не гонит
	check, err := s.ledger.Check(ctx, tx, order.Items)
	if err != nil {
		rollback(tx, logger)
		logger.Error("failed to check stock", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to check stock: %w", op, err)
	}
	if !check.Success {
		rollback(tx, logger)
		logger.Info("insufficient stock", slog.Int("issues", len(check.Issues)))
		return nil, insufficientStock(check.Issues)
	}

	if err := s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		rollback(tx, logger)
		logger.Error("failed to create order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create order: %w", op, err)
	}

	result, err := s.ledger.Apply(ctx, tx, order.ID, order.Items, models.DirectionAdd)
	if err != nil {
		rollback(tx, logger)
		logger.Error("failed to apply stock", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to apply stock: %w", op, err)
	}
	if !result.Success {
		rollback(tx, logger)
		logger.Error("stock changed after check", slog.Int("issues", len(result.Issues)))
		return nil, insufficientStock(result.Issues)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	s.publish(ctx, logger, events.New(events.TypeOrderCreated, order.ID, now, order))
	logger.Info("order created", slog.String("orderNumber", order.OrderNumber))
	return order, nil
}

// loadOrder достаёт заказ и проверяет, что principal - владелец или админ
func (s *orderService) loadOrder(ctx context.Context, principal models.Principal, id string) (*models.Order, error) {
	order, err := s.orderRepo.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !principal.IsAdmin && !order.IsOwnedBy(principal.ID) {
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *orderService) Get(ctx context.Context, principal models.Principal, id string) (*models.Order, error) {
	const op = "service.OrderService.Get"
	logger := s.log.With(slog.String("op", op), slog.String("orderID", id), slog.String("userID", principal.ID))

	order, err := s.loadOrder(ctx, principal, id)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			logger.Warn("access denied")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

func (s *orderService) Update(ctx context.Context, principal models.Principal, id string, cmd UpdateCommand) (*models.Order, error) {
	const op = "service.OrderService.Update"
	logger := s.log.With(
		slog.String("op", op),
		slog.String("orderID", id),
		slog.String("userID", principal.ID),
		slog.String("action", string(cmd.Action)),
	)

	order, err := s.loadOrder(ctx, principal, id)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			logger.Warn("access denied")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// заявку на отмену подаёт только владелец, админ отвечает на неё через respond_cancellation
	if cmd.Action == ActionRequestCancellation && !order.IsOwnedBy(principal.ID) {
		logger.Warn("cancellation requested by non-owner")
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	now := s.now().UTC()
	plan, err := PlanTransition(order, cmd, principal.IsAdmin, now, s.window)
	if err != nil {
		logger.Info("transition rejected", slog.String("status", string(order.Status)), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	updated, err := s.orderRepo.UpdateOrderFields(ctx, tx, id, plan.Expected, plan.Patch, now)
	if err != nil {
		rollback(tx, logger)
		switch {
		case errors.Is(err, storage.ErrOrderStatusConflict):
			logger.Warn("status changed concurrently", slog.String("expected", string(order.Status)))
			return nil, fmt.Errorf("%s: %w", op, ErrConflict)
		case errors.Is(err, storage.ErrOrderNotFound):
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		logger.Error("failed to update order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update order: %w", op, err)
	}

	var drift []StockIssue
	if plan.Stock != "" {
		result, err := s.ledger.Apply(ctx, tx, id, order.Items, plan.Stock)
		if err != nil {
			rollback(tx, logger)
			logger.Error("failed to apply stock", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to apply stock: %w", op, err)
		}
		if !result.Success {
			rollback(tx, logger)
			logger.Info("insufficient stock to restore order", slog.Int("issues", len(result.Issues)))
			return nil, &ValidationError{
				Reason:  ReasonInsufficientStock,
				Message: "not enough stock to restore this order",
				Issues:  result.Issues,
			}
		}
		drift = result.Issues
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	if updated.Status != order.Status {
		logger.Info("order status changed",
			slog.String("from", string(order.Status)),
			slog.String("to", string(updated.Status)),
			slog.String("stock", string(plan.Stock)),
		)
		s.publish(ctx, logger, events.New(events.TypeOrderStatusChanged, id, now, events.StatusChanged{
			From:   string(order.Status),
			To:     string(updated.Status),
			Action: string(cmd.Action),
			Actor:  principal.ID,
		}))
	}
	if len(drift) > 0 {
		logger.Warn("stock drift during reversal", slog.Int("issues", len(drift)))
		s.publish(ctx, logger, events.New(events.TypeStockDrift, id, now, drift))
	}
	return updated, nil
}

// normalizeQuery приводит параметры выборки к допустимым значениям
func normalizeQuery(q OrderQuery) (storage.OrderFilter, error) {
	status := strings.TrimSpace(q.Status)
	if status != "" && status != "all" && !models.OrderStatus(status).Valid() {
		return storage.OrderFilter{}, newValidationError(ReasonInvalidStatus, fmt.Sprintf("unknown status %q", status))
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	order := "desc"
	if strings.EqualFold(q.SortOrder, "asc") {
		order = "asc"
	}
	return storage.OrderFilter{
		Status:    status,
		UserID:    strings.TrimSpace(q.UserID),
		Search:    strings.TrimSpace(q.Search),
		SortBy:    q.SortBy,
		SortOrder: order,
		Page:      page,
		Limit:     limit,
	}, nil
}

func (s *orderService) List(ctx context.Context, principal models.Principal, query OrderQuery) (*OrderPage, error) {
	const op = "service.OrderService.List"
	logger := s.log.With(slog.String("op", op), slog.String("userID", principal.ID), slog.Bool("admin", principal.IsAdmin))

	filter, err := normalizeQuery(query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// клиент видит только свои заказы
	if !principal.IsAdmin {
		filter.UserID = principal.ID
	}

	if filter.Search != "" {
		ids, err := s.userRepo.SearchUserIDs(ctx, filter.Search)
		if err != nil {
			logger.Error("failed to search users", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to search users: %w", op, err)
		}
		filter.SearchUserIDs = make([]string, 0, len(ids))
		for _, id := range ids {
			filter.SearchUserIDs = append(filter.SearchUserIDs, strconv.FormatInt(id, 10))
		}
	}

	orders, total, err := s.orderRepo.FindOrders(ctx, filter)
	if err != nil {
		logger.Error("failed to find orders", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to find orders: %w", op, err)
	}

	views := make([]OrderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, OrderView{Order: order})
	}
	if principal.IsAdmin {
		if err := s.annotateCustomers(ctx, views); err != nil {
			logger.Error("failed to load customers", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to load customers: %w", op, err)
		}
	}

	totalPages := (total + filter.Limit - 1) / filter.Limit
	logger.Debug("orders listed", slog.Int("total", total), slog.Int("page", filter.Page))
	return &OrderPage{
		Orders:     views,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages,
	}, nil
}

func (s *orderService) annotateCustomers(ctx context.Context, views []OrderView) error {
	var ids []int64
	seen := make(map[int64]bool)
	for _, v := range views {
		if v.UserID == nil {
			continue
		}
		id, err := strconv.ParseInt(*v.UserID, 10, 64)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}

	users, err := s.userRepo.GetUsersByIDs(ctx, ids)
	if err != nil {
		return err
	}
	customers := make(map[string]*models.Customer, len(users))
	for _, u := range users {
		c := u.ToCustomer()
		customers[strconv.FormatInt(u.ID, 10)] = &c
	}
	for i := range views {
		if views[i].UserID != nil {
			views[i].Customer = customers[*views[i].UserID]
		}
	}
	return nil
}

func (s *orderService) Delete(ctx context.Context, principal models.Principal, id string) error {
	const op = "service.OrderService.Delete"
	logger := s.log.With(slog.String("op", op), slog.String("orderID", id), slog.String("userID", principal.ID))

	if !principal.IsAdmin {
		logger.Warn("access denied")
		return fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	order, err := s.loadOrder(ctx, principal, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.orderRepo.DeleteOrder(ctx, id); err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		logger.Error("failed to delete order", slog.Any("error", err))
		return fmt.Errorf("%s: failed to delete order: %w", op, err)
	}

	// остатки при удалении не возвращаются
	if order.Status.Counted() {
		logger.Warn("deleted order was still counted in stock",
			slog.String("status", string(order.Status)),
			slog.Int("items", len(order.Items)),
		)
	}
	s.publish(ctx, logger, events.New(events.TypeOrderDeleted, id, s.now(), order))
	logger.Info("order deleted")
	return nil
}

func (s *orderService) StockMovements(ctx context.Context, principal models.Principal, id string) ([]*models.StockMovement, error) {
	const op = "service.OrderService.StockMovements"

	if !principal.IsAdmin {
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}
	movements, err := s.moveRepo.GetMovementsByOrderID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return movements, nil
}
