package domain

// Типы доменных событий платежа, которые попадают в outbox.
const (
	AggregatePayment = "payment"

	EventPaymentCreated  = "payment.created"
	EventPaymentApproved = "payment.approved"
	EventPaymentDeclined = "payment.declined"
	EventPaymentRefunded = "payment.refunded"
)
