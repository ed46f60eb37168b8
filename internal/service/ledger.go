package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/linemk/shop-orders/internal/domain/models"
	"github.com/linemk/shop-orders/internal/storage"
)

// LedgerResult - итог проверки или применения позиций к остаткам.
// Для subtract Success остаётся true, а Issues описывают пропущенные позиции.
type LedgerResult struct {
	Success bool
	Issues  []StockIssue
}

// Ledger - учёт остатков, работает только внутри транзакции вызывающего.
type Ledger interface {
	Check(ctx context.Context, tx *sql.Tx, items []models.LineItem) (LedgerResult, error)
	Apply(ctx context.Context, tx *sql.Tx, orderID string, items []models.LineItem, dir models.StockDirection) (LedgerResult, error)
}

type StockLedger struct {
	log       *slog.Logger
	products  storage.ProductStorage
	movements storage.StockMovementStorage
}

func NewStockLedger(log *slog.Logger, products storage.ProductStorage, movements storage.StockMovementStorage) *StockLedger {
	return &StockLedger{
		log:       log,
		products:  products,
		movements: movements,
	}
}

// lockProducts блокирует все товары позиций в порядке кода, чтобы параллельные заказы не взаимоблокировались.
// Отсутствующий товар попадает в map как nil.
func (l *StockLedger) lockProducts(ctx context.Context, tx *sql.Tx, items []models.LineItem) (map[string]*models.Product, error) {
	codes := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if !seen[item.ProductCode] {
			seen[item.ProductCode] = true
			codes = append(codes, item.ProductCode)
		}
	}
	sort.Strings(codes)

	products := make(map[string]*models.Product, len(codes))
	for _, code := range codes {
		product, err := l.products.LockProductByCodeTx(ctx, tx, code)
		if err != nil {
			if errors.Is(err, storage.ErrProductNotFound) {
				products[code] = nil
				continue
			}
			return nil, fmt.Errorf("failed to lock product %s: %w", code, err)
		}
		products[code] = product
	}
	return products, nil
}

// simulate применяет позиции к копиям в памяти и собирает проблемы
func simulate(products map[string]*models.Product, items []models.LineItem, dir models.StockDirection) []StockIssue {
	var issues []StockIssue
	for _, item := range items {
		product := products[item.ProductCode]
		if product == nil {
			issues = append(issues, StockIssue{
				ProductCode: item.ProductCode,
				ProductName: item.Name,
				Size:        item.SelectedSize,
				Requested:   item.Quantity,
				Reason:      IssueProductNotFound,
			})
			continue
		}

		available, _ := product.Available(item.SelectedSize)
		err := product.ApplyLine(item, dir)
		switch {
		case err == nil:
		case errors.Is(err, models.ErrSizeNotFound):
			issues = append(issues, StockIssue{
				ProductCode: item.ProductCode,
				ProductName: product.Name,
				Size:        item.SelectedSize,
				Requested:   item.Quantity,
				Reason:      IssueSizeNotFound,
			})
		case errors.Is(err, models.ErrSizeRequired):
			issues = append(issues, StockIssue{
				ProductCode: item.ProductCode,
				ProductName: product.Name,
				Requested:   item.Quantity,
				Reason:      IssueSizeRequired,
			})
		default:
			issues = append(issues, StockIssue{
				ProductCode: item.ProductCode,
				ProductName: product.Name,
				Size:        item.SelectedSize,
				Requested:   item.Quantity,
				Available:   available,
				Reason:      IssueInsufficientStock,
			})
		}
	}
	return issues
}

// Check блокирует строки товаров и проверяет, хватает ли остатков на все позиции. Ничего не записывает.
func (l *StockLedger) Check(ctx context.Context, tx *sql.Tx, items []models.LineItem) (LedgerResult, error) {
	const op = "service.StockLedger.Check"

	products, err := l.lockProducts(ctx, tx, items)
	if err != nil {
		return LedgerResult{}, fmt.Errorf("%s: %w", op, err)
	}
	issues := simulate(products, items, models.DirectionAdd)
	return LedgerResult{Success: len(issues) == 0, Issues: issues}, nil
}

// Apply проводит позиции по остаткам.
// add: при любой проблеме ничего не меняется и Success = false.
// subtract: позиции с пропавшим товаром или размером пропускаются и возвращаются в Issues.
func (l *StockLedger) Apply(ctx context.Context, tx *sql.Tx, orderID string, items []models.LineItem, dir models.StockDirection) (LedgerResult, error) {
	const op = "service.StockLedger.Apply"
	logger := l.log.With(
		slog.String("op", op),
		slog.String("orderID", orderID),
		slog.String("direction", string(dir)),
	)

	if dir != models.DirectionAdd && dir != models.DirectionSubtract {
		return LedgerResult{}, fmt.Errorf("%s: unknown direction %q", op, dir)
	}

	products, err := l.lockProducts(ctx, tx, items)
	if err != nil {
		logger.Error("failed to lock products", slog.Any("error", err))
		return LedgerResult{}, fmt.Errorf("%s: %w", op, err)
	}

	issues := simulate(products, items, dir)
	if dir == models.DirectionAdd && len(issues) > 0 {
		logger.Info("stock check failed", slog.Int("issues", len(issues)))
		return LedgerResult{Success: false, Issues: issues}, nil
	}

	skipped := make(map[int]bool, len(issues))
	for i, item := range items {
		for _, issue := range issues {
			if issue.ProductCode == item.ProductCode && issue.Size == item.SelectedSize {
				skipped[i] = true
			}
		}
	}

	touched := make(map[string]bool)
	for i, item := range items {
		if skipped[i] {
			logger.Warn("stock drift: line skipped",
				slog.String("productCode", item.ProductCode),
				slog.String("size", item.SelectedSize),
				slog.Int("quantity", item.Quantity),
			)
			continue
		}
		touched[item.ProductCode] = true

		delta := item.Quantity
		if dir == models.DirectionAdd {
			delta = -delta
		}
		size := ""
		if products[item.ProductCode].HasSizes() {
			size = item.SelectedSize
		}
		movement := models.StockMovement{
			OrderID:     orderID,
			ProductCode: item.ProductCode,
			Size:        size,
			Delta:       delta,
			Direction:   dir,
		}
		if err := l.movements.RecordMovementTx(ctx, tx, movement); err != nil {
			logger.Error("failed to record stock movement", slog.Any("error", err))
			return LedgerResult{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	codes := make([]string, 0, len(touched))
	for code := range touched {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		if err := l.products.UpdateProductStockTx(ctx, tx, products[code]); err != nil {
			logger.Error("failed to update product stock", slog.String("productCode", code), slog.Any("error", err))
			return LedgerResult{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	logger.Info("stock applied", slog.Int("products", len(codes)), slog.Int("skipped", len(skipped)))
	return LedgerResult{Success: true, Issues: issues}, nil
}
