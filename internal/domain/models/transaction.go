package models

import "time"

// StockMovement - запись журнала движения остатков по заказу
type StockMovement struct {
	ID          int64          `json:"id"`
	OrderID     string         `json:"order_id"`
	ProductCode string         `json:"product_code"`
	Size        string         `json:"size,omitempty"`
	Delta       int            `json:"delta"` // отрицательная при списании
	Direction   StockDirection `json:"direction"`
	CreatedAt   time.Time      `json:"created_at"`
}
