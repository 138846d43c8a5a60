package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
)

type deliveryRepositoryInMemory struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]domain.WebhookDelivery
}

// NewDeliveryRepository возвращает in-memory репозиторий доставок webhook.
func NewDeliveryRepository() domain.DeliveryRepository {
	return &deliveryRepositoryInMemory{
		items: make(map[int64]domain.WebhookDelivery),
	}
}

// Save присваивает последовательный ID новой записи или обновляет существующую.
func (r *deliveryRepositoryInMemory) Save(delivery domain.WebhookDelivery) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if delivery.ID == 0 {
		r.nextID++
		delivery.ID = r.nextID
		r.items[delivery.ID] = delivery
		return delivery.ID, nil
	}

	current, ok := r.items[delivery.ID]
	if !ok {
		return 0, domain.ErrDeliveryNotFound
	}
	// Число попыток не уменьшается, даже если запись пришла из устаревшего снимка.
	if delivery.Attempts < current.Attempts {
		return delivery.ID, nil
	}
	r.items[delivery.ID] = delivery
	return delivery.ID, nil
}

// Get возвращает доставку или ErrDeliveryNotFound.
func (r *deliveryRepositoryInMemory) Get(id int64) (domain.WebhookDelivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivery, ok := r.items[id]
	if !ok {
		return domain.WebhookDelivery{}, domain.ErrDeliveryNotFound
	}
	return delivery, nil
}

// ListByPayment возвращает доставки по платежу в порядке создания.
func (r *deliveryRepositoryInMemory) ListByPayment(paymentID string) ([]domain.WebhookDelivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.WebhookDelivery, 0)
	for _, delivery := range r.items {
		if delivery.PaymentID == paymentID {
			result = append(result, delivery)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

var _ domain.DeliveryRepository = (*deliveryRepositoryInMemory)(nil)
