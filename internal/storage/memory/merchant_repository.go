package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
)

type merchantRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Merchant
}

// NewMerchantRepository возвращает in-memory репозиторий мерчантов.
func NewMerchantRepository() domain.MerchantRepository {
	return &merchantRepositoryInMemory{
		items: make(map[string]domain.Merchant),
	}
}

// Create сохраняет мерчанта, заполняя пустые ID, статус и дату создания.
func (r *merchantRepositoryInMemory) Create(merchant domain.Merchant) (domain.Merchant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if merchant.ID == "" {
		merchant.ID = uuid.NewString()
	}
	if merchant.Status == "" {
		merchant.Status = domain.MerchantStatusActive
	}
	if merchant.CreatedAt.IsZero() {
		merchant.CreatedAt = time.Now().UTC()
	}
	r.items[merchant.ID] = merchant
	return merchant, nil
}

// Get возвращает мерчанта или ErrMerchantNotFound.
func (r *merchantRepositoryInMemory) Get(id string) (domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	merchant, ok := r.items[id]
	if !ok {
		return domain.Merchant{}, domain.ErrMerchantNotFound
	}
	return merchant, nil
}

var _ domain.MerchantRepository = (*merchantRepositoryInMemory)(nil)
