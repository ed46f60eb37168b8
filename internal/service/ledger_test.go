package service_test

import (
	"context"
	"testing"

	"github.com/linemk/shop-orders/internal/domain/models"
	"github.com/linemk/shop-orders/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainProduct(code string, stock int) *models.Product {
	return &models.Product{ID: 1, Code: code, Name: code, Stock: stock, Revenue: decimal.Zero}
}

func shirt() *models.Product {
	p := &models.Product{
		ID:      2,
		Code:    "TS-1",
		Name:    "t-shirt",
		Sizes:   []models.ProductSize{{Name: "S", Stock: 1}, {Name: "M", Stock: 5}},
		Revenue: decimal.Zero,
	}
	p.RecomputeStock()
	return p
}

func TestStockLedger_AddThenSubtractRestores(t *testing.T) {
	products := newFakeProductRepo(plainProduct("P1", 5))
	movements := &fakeMovementRepo{}
	ledger := service.NewStockLedger(newLogger(), products, movements)
	ctx := context.Background()

	items := []models.LineItem{{ProductCode: "P1", Quantity: 2, Price: decimal.NewFromInt(100)}}

	res, err := ledger.Apply(ctx, nil, "o-1", items, models.DirectionAdd)
	require.NoError(t, err)
	assert.True(t, res.Success)

	p1 := products.products["P1"]
	assert.Equal(t, 3, p1.Stock)
	assert.Equal(t, 2, p1.Orders)
	assert.True(t, decimal.NewFromInt(200).Equal(p1.Revenue))

	res, err = ledger.Apply(ctx, nil, "o-1", items, models.DirectionSubtract)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Issues)

	p1 = products.products["P1"]
	assert.Equal(t, 5, p1.Stock)
	assert.Equal(t, 0, p1.Orders)
	assert.True(t, p1.Revenue.IsZero())

	require.Len(t, movements.movements, 2)
	assert.Equal(t, -2, movements.movements[0].Delta)
	assert.Equal(t, models.DirectionAdd, movements.movements[0].Direction)
	assert.Equal(t, 2, movements.movements[1].Delta)
}

func TestStockLedger_AddInsufficientMutatesNothing(t *testing.T) {
	products := newFakeProductRepo(plainProduct("P1", 1), plainProduct("P2", 10))
	movements := &fakeMovementRepo{}
	ledger := service.NewStockLedger(newLogger(), products, movements)

	items := []models.LineItem{
		{ProductCode: "P2", Quantity: 1, Price: decimal.NewFromInt(10)},
		{ProductCode: "P1", Quantity: 2, Price: decimal.NewFromInt(100)},
	}
	res, err := ledger.Apply(context.Background(), nil, "o-1", items, models.DirectionAdd)
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, service.StockIssue{
		ProductCode: "P1",
		ProductName: "P1",
		Requested:   2,
		Available:   1,
		Reason:      service.IssueInsufficientStock,
	}, res.Issues[0])

	assert.Equal(t, 0, products.writes)
	assert.Empty(t, movements.movements)
	assert.Equal(t, 10, products.products["P2"].Stock)
}

func TestStockLedger_AddSizedUsesSizeStock(t *testing.T) {
	products := newFakeProductRepo(shirt())
	movements := &fakeMovementRepo{}
	ledger := service.NewStockLedger(newLogger(), products, movements)
	ctx := context.Background()

	// агрегат 6, но размер S только 1
	res, err := ledger.Apply(ctx, nil, "o-1", []models.LineItem{
		{ProductCode: "TS-1", Quantity: 2, Price: decimal.NewFromInt(20), SelectedSize: "S"},
	}, models.DirectionAdd)
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "S", res.Issues[0].Size)
	assert.Equal(t, 1, res.Issues[0].Available)

	res, err = ledger.Apply(ctx, nil, "o-2", []models.LineItem{
		{ProductCode: "TS-1", Quantity: 3, Price: decimal.NewFromInt(20), SelectedSize: "M"},
	}, models.DirectionAdd)
	require.NoError(t, err)
	assert.True(t, res.Success)

	p := products.products["TS-1"]
	assert.Equal(t, 2, p.Sizes[1].Stock)
	assert.Equal(t, 3, p.Stock, "product stock is the sum of sizes")
	require.Len(t, movements.movements, 1)
	assert.Equal(t, "M", movements.movements[0].Size)
}

func TestStockLedger_AddCumulativeForRepeatedProduct(t *testing.T) {
	products := newFakeProductRepo(plainProduct("P1", 3))
	ledger := service.NewStockLedger(newLogger(), products, &fakeMovementRepo{})

	// по отдельности каждая позиция проходит, вместе - нет
	items := []models.LineItem{
		{ProductCode: "P1", Quantity: 2, Price: decimal.NewFromInt(1)},
		{ProductCode: "P1", Quantity: 2, Price: decimal.NewFromInt(1)},
	}
	res, err := ledger.Apply(context.Background(), nil, "o-1", items, models.DirectionAdd)
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, 1, res.Issues[0].Available)
	assert.Equal(t, 3, products.products["P1"].Stock)
}

func TestStockLedger_MissingProduct(t *testing.T) {
	products := newFakeProductRepo(plainProduct("P1", 5))
	movements := &fakeMovementRepo{}
	ledger := service.NewStockLedger(newLogger(), products, movements)
	ctx := context.Background()

	items := []models.LineItem{
		{ProductCode: "P1", Quantity: 1, Price: decimal.NewFromInt(10)},
		{ProductCode: "GONE", Name: "retired", Quantity: 1, Price: decimal.NewFromInt(10)},
	}

	check, err := ledger.Apply(ctx, nil, "o-1", items, models.DirectionAdd)
	require.NoError(t, err)
	assert.False(t, check.Success)
	require.Len(t, check.Issues, 1)
	assert.Equal(t, service.IssueProductNotFound, check.Issues[0].Reason)
	assert.Equal(t, 5, products.products["P1"].Stock)
	assert.Empty(t, movements.movements)

	// при возврате пропавший товар пропускается, остальное применяется
	res, err := ledger.Apply(ctx, nil, "o-1", items, models.DirectionSubtract)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "GONE", res.Issues[0].ProductCode)
	assert.Equal(t, 6, products.products["P1"].Stock)
	require.Len(t, movements.movements, 1)
	assert.Equal(t, "P1", movements.movements[0].ProductCode)
}

func TestStockLedger_FailedAddDoesNotWrite(t *testing.T) {
	products := newFakeProductRepo(plainProduct("P1", 5), plainProduct("P2", 3))
	movements := &fakeMovementRepo{}
	ledger := service.NewStockLedger(newLogger(), products, movements)

	res, err := ledger.Apply(context.Background(), nil, "o-1", []models.LineItem{
		{ProductCode: "P1", Quantity: 5, Price: decimal.NewFromInt(10)},
		{ProductCode: "P2", Quantity: 4, Price: decimal.NewFromInt(10)},
	}, models.DirectionAdd)
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "P2", res.Issues[0].ProductCode)
	assert.Equal(t, 0, products.writes)
	assert.Empty(t, movements.movements)
}

func TestStockLedger_CheckDoesNotWrite(t *testing.T) {
	products := newFakeProductRepo(plainProduct("P1", 5))
	movements := &fakeMovementRepo{}
	ledger := service.NewStockLedger(newLogger(), products, movements)

	res, err := ledger.Check(context.Background(), nil, []models.LineItem{
		{ProductCode: "P1", Quantity: 5, Price: decimal.NewFromInt(10)},
		{ProductCode: "GONE", Name: "retired", Quantity: 1, Price: decimal.NewFromInt(10)},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, service.IssueProductNotFound, res.Issues[0].Reason)
	assert.Equal(t, 0, products.writes)
	assert.Empty(t, movements.movements)
}

func TestStockLedger_SizedProductWithoutSize(t *testing.T) {
	p := &models.Product{
		ID:      3,
		Code:    "TS-2",
		Name:    "hoodie",
		Sizes:   []models.ProductSize{{Name: "S", Stock: 2}, {Name: "M", Stock: 3}},
		Revenue: decimal.Zero,
	}
	p.RecomputeStock()
	products := newFakeProductRepo(p)
	movements := &fakeMovementRepo{}
	ledger := service.NewStockLedger(newLogger(), products, movements)
	ctx := context.Background()

	unsized := []models.LineItem{{ProductCode: "TS-2", Quantity: 2, Price: decimal.NewFromInt(30)}}

	// без размера заказ не оформляется и остатки не трогаются
	res, err := ledger.Apply(ctx, nil, "o-1", unsized, models.DirectionAdd)
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, service.IssueSizeRequired, res.Issues[0].Reason)
	assert.Equal(t, 0, products.writes)

	res, err = ledger.Apply(ctx, nil, "o-2", []models.LineItem{
		{ProductCode: "TS-2", Quantity: 1, Price: decimal.NewFromInt(30), SelectedSize: "S"},
	}, models.DirectionAdd)
	require.NoError(t, err)
	require.True(t, res.Success)

	// отмена старого заказа без размера пропускает позицию, а не раздувает остаток
	res, err = ledger.Apply(ctx, nil, "o-legacy", unsized, models.DirectionSubtract)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, service.IssueSizeRequired, res.Issues[0].Reason)

	got := products.products["TS-2"]
	assert.Equal(t, []models.ProductSize{{Name: "S", Stock: 1}, {Name: "M", Stock: 3}}, got.Sizes)
	assert.Equal(t, 4, got.Stock, "product stock is the sum of sizes")
	require.Len(t, movements.movements, 1)
	assert.Equal(t, "S", movements.movements[0].Size)
}
