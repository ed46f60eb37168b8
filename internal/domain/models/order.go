package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem - одна позиция заказа
type LineItem struct {
	ProductCode  string          `json:"productCode"`
	Name         string          `json:"name,omitempty"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"` // цена за единицу на момент заказа
	SelectedSize string          `json:"selectedSize,omitempty"`
	IsCombo      bool            `json:"isCombo,omitempty"`
	Products     []ComboProduct  `json:"products,omitempty"` // состав набора, только хранится
}

// ComboProduct - товар внутри набора
type ComboProduct struct {
	ProductCode  string `json:"productCode"`
	Name         string `json:"name,omitempty"`
	Quantity     int    `json:"quantity,omitempty"`
	SelectedSize string `json:"selectedSize,omitempty"`
}

// LineTotal возвращает price * quantity
func (i LineItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Payment - данные об оплате. Оплата не проверяется, только записывается.
type Payment struct {
	Method            string `json:"method"`
	TransactionID     string `json:"transactionId,omitempty"`
	PaymentScreenshot string `json:"paymentScreenshot,omitempty"`
	PaymentStatus     string `json:"paymentStatus"`
}

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Order - заказ. UserID == nil для гостевого заказа.
type Order struct {
	ID           string          `json:"id"`
	OrderNumber  string          `json:"orderNumber"`
	UserID       *string         `json:"user,omitempty"`
	Items        []LineItem      `json:"items"`
	Status       OrderStatus     `json:"status"`
	Payment      Payment         `json:"payment"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	Total        decimal.Decimal `json:"total"`
	AdminNotes   string          `json:"adminNotes,omitempty"`

	CancellationReason      *string    `json:"cancellationReason,omitempty"`
	CancellationRequestedAt *time.Time `json:"cancellationRequestedAt,omitempty"`
	CancellationResponded   *bool      `json:"cancellationResponded,omitempty"`
	CancellationApproved    *bool      `json:"cancellationApproved,omitempty"`
	CancellationRespondedAt *time.Time `json:"cancellationRespondedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsOwnedBy проверяет, принадлежит ли заказ пользователю
func (o *Order) IsOwnedBy(userID string) bool {
	return o.UserID != nil && userID != "" && *o.UserID == userID
}

// CancellationTouched - была ли уже подана заявка на отмену или дан ответ
func (o *Order) CancellationTouched() bool {
	return o.CancellationRequestedAt != nil || (o.CancellationResponded != nil && *o.CancellationResponded)
}

// OrderPatch - набор изменяемых полей. nil означает "не менять".
type OrderPatch struct {
	Status                  *OrderStatus
	AdminNotes              *string
	PaymentStatus           *string
	CancellationReason      *string
	CancellationRequestedAt *time.Time
	CancellationResponded   *bool
	CancellationApproved    *bool
	CancellationRespondedAt *time.Time
}
