package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/shop-orders/internal/domain/models"
)

// ProductStorage описывает методы для работы с остатками товаров.
type ProductStorage interface {
	// LockProductByCodeTx получает товар вместе с размерами и блокирует строки до конца транзакции.
	LockProductByCodeTx(ctx context.Context, tx *sql.Tx, code string) (*models.Product, error)
	// UpdateProductStockTx записывает остатки размеров, остаток товара и счётчики orders/revenue.
	UpdateProductStockTx(ctx context.Context, tx *sql.Tx, product *models.Product) error
}

// productRepository - конкретная реализация интерфейса ProductStorage.
type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт новый репозиторий товаров.
func NewProductRepository(db *sql.DB) ProductStorage {
	return &productRepository{db: db}
}

var ErrProductNotFound = errors.New("product not found")

// LockProductByCodeTx ищет товар по коду в таблице products.
func (r *productRepository) LockProductByCodeTx(ctx context.Context, tx *sql.Tx, code string) (*models.Product, error) {
	product := &models.Product{}
	query := "SELECT id, code, name, stock, orders, revenue FROM products WHERE code = $1 FOR UPDATE"
	row := tx.QueryRowContext(ctx, query, code)
	if err := row.Scan(&product.ID, &product.Code, &product.Name, &product.Stock, &product.Orders, &product.Revenue); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT name, stock FROM product_sizes WHERE product_id = $1 ORDER BY position FOR UPDATE", product.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query product sizes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var size models.ProductSize
		if err := rows.Scan(&size.Name, &size.Stock); err != nil {
			return nil, fmt.Errorf("failed to scan product size: %w", err)
		}
		product.Sizes = append(product.Sizes, size)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateProductStockTx сохраняет изменённые остатки. Для товара с размерами
// product.Stock приходит уже пересчитанным из размеров (models.Product.RecomputeStock).
func (r *productRepository) UpdateProductStockTx(ctx context.Context, tx *sql.Tx, product *models.Product) error {
	for _, size := range product.Sizes {
		_, err := tx.ExecContext(ctx,
			"UPDATE product_sizes SET stock = $1 WHERE product_id = $2 AND name = $3",
			size.Stock, product.ID, size.Name)
		if err != nil {
			return fmt.Errorf("failed to update size %s: %w", size.Name, err)
		}
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE products SET stock = $1, orders = $2, revenue = $3, updated_at = NOW() WHERE id = $4",
		product.Stock, product.Orders, product.Revenue, product.ID)
	if err != nil {
		return fmt.Errorf("failed to update product stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProductNotFound
	}
	return nil
}
