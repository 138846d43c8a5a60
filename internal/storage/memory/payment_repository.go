package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
)

// paymentRepositoryInMemory: in-memory реализация PaymentRepository.
type paymentRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Payment
	// byKey индексирует платежи по паре (merchant, idempotency key).
	byKey map[idempotencyIndex]string
}

type idempotencyIndex struct {
	merchantID string
	key        string
}

// NewPaymentRepository возвращает in-memory репозиторий платежей.
func NewPaymentRepository() domain.PaymentRepository {
	return &paymentRepositoryInMemory{
		items: make(map[string]domain.Payment),
		byKey: make(map[idempotencyIndex]string),
	}
}

// Create сохраняет новый платёж. Проверка ключа и вставка атомарны.
func (r *paymentRepositoryInMemory) Create(payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[payment.ID]; exists {
		return domain.ErrPaymentAlreadyExists
	}
	if payment.IdempotencyKey != "" {
		idx := idempotencyIndex{merchantID: payment.MerchantID, key: payment.IdempotencyKey}
		if _, exists := r.byKey[idx]; exists {
			return domain.ErrPaymentAlreadyExists
		}
		r.byKey[idx] = payment.ID
	}
	r.items[payment.ID] = payment
	return nil
}

// Save перезаписывает существующий платёж.
func (r *paymentRepositoryInMemory) Save(payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[payment.ID]; !ok {
		return domain.ErrPaymentNotFound
	}
	r.items[payment.ID] = payment
	return nil
}

// SaveIfStatus сравнивает статус и записывает платёж под одной блокировкой.
func (r *paymentRepositoryInMemory) SaveIfStatus(payment domain.Payment, expected domain.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[payment.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if stored.Status != expected {
		return domain.ErrInvalidTransition
	}
	r.items[payment.ID] = payment
	return nil
}

// Get возвращает платёж или ErrPaymentNotFound.
func (r *paymentRepositoryInMemory) Get(id string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.items[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return payment, nil
}

// FindByIdempotencyKey ищет платёж мерчанта по ключу идемпотентности.
func (r *paymentRepositoryInMemory) FindByIdempotencyKey(merchantID, key string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[idempotencyIndex{merchantID: merchantID, key: key}]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return r.items[id], nil
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
