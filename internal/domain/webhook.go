package domain

import "time"

// EventTypePaymentUpdated: единственный тип события, который уходит мерчантам.
const EventTypePaymentUpdated = "payment.updated"

// WebhookDelivery хранит состояние доставки одного события.
type WebhookDelivery struct {
	ID            int64
	EventID       string
	EventType     string
	PaymentID     string
	TargetURL     string
	Signature     string
	Payload       string
	Attempts      int
	Delivered     bool
	LastAttemptAt *time.Time
	CreatedAt     time.Time
}

// RecordAttempt учитывает завершённую попытку доставки.
func (d *WebhookDelivery) RecordAttempt(delivered bool, at time.Time) {
	d.Attempts++
	d.Delivered = delivered
	d.LastAttemptAt = &at
}

// CanRetry сообщает, нужна ли ещё одна попытка при лимите maxAttempts.
func (d WebhookDelivery) CanRetry(maxAttempts int) bool {
	return !d.Delivered && d.Attempts < maxAttempts
}
