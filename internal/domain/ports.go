package domain

import "time"

// PaymentRepository описывает хранилище платежей.
// Реализации должны быть безопасны для конкурентного доступа из пулов воркеров.
type PaymentRepository interface {
	// Create сохраняет новый платёж. Возвращает ErrPaymentAlreadyExists при дубликате
	// идентификатора или пары (merchant, idempotency key).
	Create(payment Payment) error
	// Save перезаписывает существующий платёж или возвращает ErrPaymentNotFound.
	Save(payment Payment) error
	// SaveIfStatus перезаписывает платёж, только если сохранённый статус равен expected.
	// Иначе возвращает ErrInvalidTransition и запись не меняется.
	SaveIfStatus(payment Payment, expected PaymentStatus) error
	// Get возвращает платёж или ErrPaymentNotFound.
	Get(id string) (Payment, error)
	// FindByIdempotencyKey ищет платёж мерчанта по ключу идемпотентности.
	FindByIdempotencyKey(merchantID, key string) (Payment, error)
}

// DeliveryRepository описывает хранилище доставок webhook.
type DeliveryRepository interface {
	// Save создаёт запись при ID == 0 и возвращает присвоенный идентификатор,
	// иначе обновляет существующую.
	Save(delivery WebhookDelivery) (int64, error)
	// Get возвращает доставку или ErrDeliveryNotFound.
	Get(id int64) (WebhookDelivery, error)
	// ListByPayment возвращает историю доставок по платежу в порядке создания.
	ListByPayment(paymentID string) ([]WebhookDelivery, error)
}

// MerchantRepository описывает хранилище мерчантов.
type MerchantRepository interface {
	Create(merchant Merchant) (Merchant, error)
	Get(id string) (Merchant, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	// MarkAttemptFailed учитывает неудачную публикацию; после maxAttempts
	// сообщение переходит в failed и больше не выбирается.
	MarkAttemptFailed(id string, maxAttempts int) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Attempts      int
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
