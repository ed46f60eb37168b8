package service

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("order status changed concurrently")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// коды причин для ValidationError
const (
	ReasonInvalidRequest          = "invalid_request"
	ReasonInvalidAction           = "invalid_action"
	ReasonInvalidStatus           = "invalid_status"
	ReasonInvalidPaymentMethod    = "invalid_payment_method"
	ReasonInvalidPaymentStatus    = "invalid_payment_status"
	ReasonInsufficientStock       = "insufficient_stock"
	ReasonWindowExpired           = "cancellation_window_expired"
	ReasonCancellationNotAllowed  = "cancellation_not_allowed"
	ReasonCancellationRequested   = "cancellation_already_requested"
	ReasonReasonRequired          = "cancellation_reason_required"
	ReasonNoPendingCancellation   = "no_pending_cancellation"
	ReasonCancellationDecisionReq = "cancellation_decision_required"
)

// StockIssue - одна позиция, которую не удалось провести по остаткам
type StockIssue struct {
	ProductCode string `json:"productCode"`
	ProductName string `json:"productName,omitempty"`
	Size        string `json:"size,omitempty"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
	Reason      string `json:"reason"`
}

// причины в StockIssue
const (
	IssueInsufficientStock = "insufficient_stock"
	IssueProductNotFound   = "product_not_found"
	IssueSizeNotFound      = "size_not_found"
	IssueSizeRequired      = "size_required"
)

// ValidationError - ошибка бизнес-проверки, отдаётся клиенту как есть (400)
type ValidationError struct {
	Reason  string
	Message string
	Issues  []StockIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) > 0 {
		return fmt.Sprintf("%s: %s (%d issues)", e.Reason, e.Message, len(e.Issues))
	}
	return e.Reason + ": " + e.Message
}

func newValidationError(reason, message string) *ValidationError {
	return &ValidationError{Reason: reason, Message: message}
}
