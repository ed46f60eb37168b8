package models

// OrderStatus - состояние заказа
type OrderStatus string

const (
	StatusPending                     OrderStatus = "pending"
	StatusAwaitingPaymentVerification OrderStatus = "awaiting_payment_verification"
	StatusProcessing                  OrderStatus = "processing"
	StatusDelivered                   OrderStatus = "delivered"
	StatusCancelled                   OrderStatus = "cancelled"
	StatusCancellationRequested       OrderStatus = "cancellation_requested"
)

var knownStatuses = map[OrderStatus]bool{
	StatusPending:                     true,
	StatusAwaitingPaymentVerification: true,
	StatusProcessing:                  true,
	StatusDelivered:                   true,
	StatusCancelled:                   true,
	StatusCancellationRequested:       true,
}

// Valid проверяет, что статус известен
func (s OrderStatus) Valid() bool {
	return knownStatuses[s]
}

// Counted - учитывается ли заказ в остатках (всё, кроме cancelled)
func (s OrderStatus) Counted() bool {
	return s != StatusCancelled
}

// PendingLike - pending и ожидание проверки оплаты ведут себя одинаково
func (s OrderStatus) PendingLike() bool {
	return s == StatusPending || s == StatusAwaitingPaymentVerification
}

// Statuses возвращает все известные статусы в стабильном порядке
func Statuses() []OrderStatus {
	return []OrderStatus{
		StatusPending,
		StatusAwaitingPaymentVerification,
		StatusProcessing,
		StatusDelivered,
		StatusCancelled,
		StatusCancellationRequested,
	}
}

// способы оплаты через мобильные кошельки требуют ручной проверки
var mobileFinancialMethods = map[string]bool{
	"bkash":  true,
	"nagad":  true,
	"rocket": true,
	"upay":   true,
}

const PaymentMethodCOD = "cod"

// KnownPaymentMethod проверяет способ оплаты; пустой считается наложенным платежом
func KnownPaymentMethod(method string) bool {
	return method == "" || method == PaymentMethodCOD || mobileFinancialMethods[method]
}

// InitialStatus выбирает стартовый статус по способу оплаты
func InitialStatus(paymentMethod string) OrderStatus {
	if mobileFinancialMethods[paymentMethod] {
		return StatusAwaitingPaymentVerification
	}
	return StatusPending
}
