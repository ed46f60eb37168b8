package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/linemk/shop-orders/internal/domain/models"
)

// StockMovementStorage описывает методы для работы с журналом движения остатков.
type StockMovementStorage interface {
	// RecordMovementTx создает запись о движении остатков.
	RecordMovementTx(ctx context.Context, tx *sql.Tx, movement models.StockMovement) error
	// GetMovementsByOrderID возвращает журнал движений по заказу.
	GetMovementsByOrderID(ctx context.Context, orderID string) ([]*models.StockMovement, error)
}

type stockMovementRepository struct {
	db *sql.DB
}

func NewStockMovementRepository(db *sql.DB) StockMovementStorage {
	return &stockMovementRepository{db: db}
}

func (r *stockMovementRepository) RecordMovementTx(ctx context.Context, tx *sql.Tx, m models.StockMovement) error {
	query := `INSERT INTO stock_movements (order_id, product_code, size, delta, direction, created_at)
	          VALUES ($1, $2, $3, $4, $5, NOW())`
	_, err := tx.ExecContext(ctx, query, m.OrderID, m.ProductCode, m.Size, m.Delta, string(m.Direction))
	if err != nil {
		return fmt.Errorf("failed to record stock movement: %w", err)
	}
	return nil
}

func (r *stockMovementRepository) GetMovementsByOrderID(ctx context.Context, orderID string) ([]*models.StockMovement, error) {
	query := `
		SELECT id, order_id, product_code, size, delta, direction, created_at
		FROM stock_movements
		WHERE order_id = $1
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock movements: %w", err)
	}
	defer rows.Close()

	var movements []*models.StockMovement
	for rows.Next() {
		m := &models.StockMovement{}
		var direction string
		if err := rows.Scan(&m.ID, &m.OrderID, &m.ProductCode, &m.Size, &m.Delta, &direction, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		m.Direction = models.StockDirection(direction)
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}
