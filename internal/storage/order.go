package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/linemk/shop-orders/internal/domain/models"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderStatusConflict - условное обновление не нашло заказ в ожидаемом статусе
	ErrOrderStatusConflict = errors.New("order status changed concurrently")
)

const orderColumns = `id, order_number, user_id, items, status, payment, subtotal, discount, shipping_cost, total, admin_notes,
	cancellation_reason, cancellation_requested_at, cancellation_responded, cancellation_approved, cancellation_responded_at,
	created_at, updated_at`

// сортировка разрешена только по этим полям
var orderSortColumns = map[string]string{
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"total":       "total",
	"status":      "status",
	"orderNumber": "order_number",
}

// OrderFilter - параметры выборки заказов. Значения уже нормализованы сервисом.
type OrderFilter struct {
	Status string // пусто или "all" - любой статус
	UserID string
	// Search - строка поиска; SearchUserIDs - id пользователей, найденных по имени/email/телефону
	Search        string
	SearchUserIDs []string
	SortBy        string
	SortOrder     string
	Page          int
	Limit         int
}

// OrderStorage описывает методы для работы с заказами.
type OrderStorage interface {
	// CreateOrder вставляет новый заказ в рамках транзакции.
	CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	// UpdateOrderFields применяет патч и всегда обновляет updated_at.
	// Если expected не nil, обновление выполняется только при совпадении текущего статуса.
	UpdateOrderFields(ctx context.Context, tx *sql.Tx, id string, expected *models.OrderStatus, patch models.OrderPatch, now time.Time) (*models.Order, error)
	FindOrders(ctx context.Context, filter OrderFilter) ([]*models.Order, int, error)
	DeleteOrder(ctx context.Context, id string) error
}

// orderRepository - конкретная реализация OrderStorage.
type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		order       models.Order
		userID      sql.NullString
		itemsRaw    []byte
		paymentRaw  []byte
		status      string
		reason      sql.NullString
		requestedAt sql.NullTime
		responded   sql.NullBool
		approved    sql.NullBool
		respondedAt sql.NullTime
	)
	err := row.Scan(
		&order.ID, &order.OrderNumber, &userID, &itemsRaw, &status, &paymentRaw,
		&order.Subtotal, &order.Discount, &order.ShippingCost, &order.Total, &order.AdminNotes,
		&reason, &requestedAt, &responded, &approved, &respondedAt,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.Status = models.OrderStatus(status)
	if userID.Valid {
		order.UserID = &userID.String
	}
	if err := json.Unmarshal(itemsRaw, &order.Items); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}
	if err := json.Unmarshal(paymentRaw, &order.Payment); err != nil {
		return nil, fmt.Errorf("failed to decode order payment: %w", err)
	}
	if reason.Valid {
		order.CancellationReason = &reason.String
	}
	if requestedAt.Valid {
		order.CancellationRequestedAt = &requestedAt.Time
	}
	if responded.Valid {
		order.CancellationResponded = &responded.Bool
	}
	if approved.Valid {
		order.CancellationApproved = &approved.Bool
	}
	if respondedAt.Valid {
		order.CancellationRespondedAt = &respondedAt.Time
	}
	return &order, nil
}

// CreateOrder вставляет новый заказ в таблицу orders.
func (r *orderRepository) CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}
	payment, err := json.Marshal(order.Payment)
	if err != nil {
		return fmt.Errorf("failed to encode order payment: %w", err)
	}

	query := `INSERT INTO orders (id, order_number, user_id, items, status, payment, subtotal, discount, shipping_cost, total, admin_notes, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err = tx.ExecContext(ctx, query,
		order.ID, order.OrderNumber, nullableString(order.UserID), items, string(order.Status), payment,
		order.Subtotal, order.Discount, order.ShippingCost, order.Total, order.AdminNotes,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetOrderByID возвращает заказ по идентификатору.
func (r *orderRepository) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// UpdateOrderFields - условное обновление заказа одним запросом.
func (r *orderRepository) UpdateOrderFields(ctx context.Context, tx *sql.Tx, id string, expected *models.OrderStatus, patch models.OrderPatch, now time.Time) (*models.Order, error) {
	var (
		sets []string
		args []any
	)
	set := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if patch.Status != nil {
		set("status = $%d", string(*patch.Status))
	}
	if patch.AdminNotes != nil {
		set("admin_notes = $%d", *patch.AdminNotes)
	}
	if patch.PaymentStatus != nil {
		set("payment = jsonb_set(payment, '{paymentStatus}', to_jsonb($%d::text))", *patch.PaymentStatus)
	}
	if patch.CancellationReason != nil {
		set("cancellation_reason = $%d", *patch.CancellationReason)
	}
	if patch.CancellationRequestedAt != nil {
		set("cancellation_requested_at = $%d", *patch.CancellationRequestedAt)
	}
	if patch.CancellationResponded != nil {
		set("cancellation_responded = $%d", *patch.CancellationResponded)
	}
	if patch.CancellationApproved != nil {
		set("cancellation_approved = $%d", *patch.CancellationApproved)
	}
	if patch.CancellationRespondedAt != nil {
		set("cancellation_responded_at = $%d", *patch.CancellationRespondedAt)
	}
	set("updated_at = $%d", now)

	args = append(args, id)
	where := fmt.Sprintf("id = $%d", len(args))
	if expected != nil {
		args = append(args, string(*expected))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query := "UPDATE orders SET " + strings.Join(sets, ", ") + " WHERE " + where + " RETURNING " + orderColumns
	order, err := scanOrder(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if expected != nil {
				return nil, ErrOrderStatusConflict
			}
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to update order: %w", err)
	}
	return order, nil
}

// FindOrders возвращает страницу заказов и общее количество подходящих под фильтр.
func (r *orderRepository) FindOrders(ctx context.Context, filter OrderFilter) ([]*models.Order, int, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" && filter.Status != "all" {
		conds = append(conds, "status = "+arg(filter.Status))
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = "+arg(filter.UserID))
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		escaped := escapeLike(term)
		contains := arg("%" + escaped + "%")
		conds = append(conds, fmt.Sprintf("(user_id = ANY(%s) OR id ILIKE %s OR order_number ILIKE %s OR status ILIKE %s)",
			arg(pq.Array(filter.SearchUserIDs)), arg("%"+escaped), contains, contains))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	column, ok := orderSortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		direction = "ASC"
	}
	limit := arg(filter.Limit)
	offset := arg((filter.Page - 1) * filter.Limit)
	query := "SELECT " + orderColumns + " FROM orders" + where +
		fmt.Sprintf(" ORDER BY %s %s LIMIT %s OFFSET %s", column, direction, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// DeleteOrder удаляет заказ. Остатки при этом не трогаются.
func (r *orderRepository) DeleteOrder(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
