package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/linemk/shop-orders/internal/domain/models"
)

// UpdateAction - вид изменения заказа
type UpdateAction string

const (
	ActionSetAdminNotes       UpdateAction = "set_admin_notes"
	ActionRequestCancellation UpdateAction = "request_cancellation"
	ActionRespondCancellation UpdateAction = "respond_cancellation"
	ActionSetStatus           UpdateAction = "set_status"
	ActionUpdatePaymentStatus UpdateAction = "update_payment_status"
)

// UpdateCommand - запрос на изменение заказа. Используются только поля своего Action.
type UpdateCommand struct {
	Action        UpdateAction
	AdminNotes    string
	Reason        string
	Approve       *bool
	Status        models.OrderStatus
	PaymentStatus string
}

// Transition - результат планирования: что записать, при каком статусе и что сделать с остатками
type Transition struct {
	Patch    models.OrderPatch
	Expected *models.OrderStatus
	// Stock пустой, если остатки не меняются
	Stock models.StockDirection
}

var paymentStatuses = map[string]bool{
	models.PaymentStatusPending:  true,
	models.PaymentStatusPaid:     true,
	models.PaymentStatusFailed:   true,
	models.PaymentStatusRefunded: true,
}

// CancellationDeadline возвращает момент, после которого клиент не может запросить отмену
func CancellationDeadline(order *models.Order, window time.Duration) time.Time {
	return order.CreatedAt.Add(window)
}

// PlanTransition проверяет команду против текущего состояния заказа и роли.
// Владение заказом проверяет вызывающий.
func PlanTransition(order *models.Order, cmd UpdateCommand, isAdmin bool, now time.Time, window time.Duration) (Transition, error) {
	if !isAdmin && cmd.Action != ActionRequestCancellation {
		return Transition{}, ErrForbidden
	}

	current := order.Status
	switch cmd.Action {
	case ActionSetAdminNotes:
		notes := cmd.AdminNotes
		return Transition{Patch: models.OrderPatch{AdminNotes: &notes}}, nil

	case ActionUpdatePaymentStatus:
		if !paymentStatuses[cmd.PaymentStatus] {
			return Transition{}, newValidationError(ReasonInvalidPaymentStatus,
				fmt.Sprintf("unknown payment status %q", cmd.PaymentStatus))
		}
		ps := cmd.PaymentStatus
		return Transition{Patch: models.OrderPatch{PaymentStatus: &ps}}, nil

	case ActionRequestCancellation:
		if !current.PendingLike() && current != models.StatusProcessing {
			return Transition{}, newValidationError(ReasonCancellationNotAllowed,
				fmt.Sprintf("order in status %q cannot be cancelled", current))
		}
		if order.CancellationTouched() {
			return Transition{}, newValidationError(ReasonCancellationRequested,
				"cancellation has already been requested for this order")
		}
		if now.After(CancellationDeadline(order, window)) {
			return Transition{}, newValidationError(ReasonWindowExpired,
				fmt.Sprintf("cancellation is only possible within %s of placing the order", window))
		}
		reason := strings.TrimSpace(cmd.Reason)
		if reason == "" {
			return Transition{}, newValidationError(ReasonReasonRequired, "cancellation reason is required")
		}
		status := models.StatusCancellationRequested
		requestedAt := now
		return Transition{
			Patch: models.OrderPatch{
				Status:                  &status,
				CancellationReason:      &reason,
				CancellationRequestedAt: &requestedAt,
			},
			Expected: &current,
		}, nil

	case ActionRespondCancellation:
		if current != models.StatusCancellationRequested {
			return Transition{}, newValidationError(ReasonNoPendingCancellation,
				"order has no pending cancellation request")
		}
		if cmd.Approve == nil {
			return Transition{}, newValidationError(ReasonCancellationDecisionReq, "approve must be set")
		}
		approved := *cmd.Approve
		responded := true
		respondedAt := now
		patch := models.OrderPatch{
			CancellationResponded:   &responded,
			CancellationApproved:    &approved,
			CancellationRespondedAt: &respondedAt,
		}
		t := Transition{Patch: patch, Expected: &current}
		if approved {
			status := models.StatusCancelled
			t.Patch.Status = &status
			t.Stock = models.DirectionSubtract
		} else {
			status := models.StatusPending
			t.Patch.Status = &status
		}
		return t, nil

	case ActionSetStatus:
		next := cmd.Status
		if !next.Valid() {
			return Transition{}, newValidationError(ReasonInvalidStatus, fmt.Sprintf("unknown status %q", next))
		}
		t := Transition{
			Patch:    models.OrderPatch{Status: &next},
			Expected: &current,
		}
		switch {
		case current.Counted() && !next.Counted():
			t.Stock = models.DirectionSubtract
		case !current.Counted() && next.Counted():
			t.Stock = models.DirectionAdd
		}
		return t, nil
	}

	return Transition{}, newValidationError(ReasonInvalidAction, fmt.Sprintf("unknown action %q", cmd.Action))
}
