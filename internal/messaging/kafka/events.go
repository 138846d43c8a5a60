package kafka

import (
	"encoding/json"
	"time"
)

// EventType определяет тип события платежа.
type EventType string

const (
	EventTypePaymentCreated  EventType = "payment.created"
	EventTypePaymentApproved EventType = "payment.approved"
	EventTypePaymentDeclined EventType = "payment.declined"
	EventTypePaymentRefunded EventType = "payment.refunded"
)

// TopicPaymentEvents: topic по умолчанию для событий жизненного цикла платежей.
const TopicPaymentEvents = "fiadopay.payment.events"

// Заголовки сообщения, по которым потребители фильтруют события без разбора тела.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
)

// PaymentEvent: конверт события платежа, публикуемого из outbox.
type PaymentEvent struct {
	ID            string          `json:"id"`
	EventType     EventType       `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	PaymentID     string          `json:"payment_id"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}
