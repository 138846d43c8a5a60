package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
)

type merchantRepository struct {
	db *sql.DB
}

// NewMerchantRepository создаёт PostgreSQL-реализацию MerchantRepository.
func NewMerchantRepository(store *Store) domain.MerchantRepository {
	return &merchantRepository{db: store.DB()}
}

// Create заполняет пустые ID, статус и время создания так же, как in-memory реализация.
func (r *merchantRepository) Create(m domain.Merchant) (domain.Merchant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = domain.MerchantStatusActive
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO merchants (id, name, status, webhook_url, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, m.ID, m.Name, string(m.Status), m.WebhookURL, m.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Merchant{}, fmt.Errorf("merchant %s already exists: %w", m.ID, err)
		}
		return domain.Merchant{}, fmt.Errorf("insert merchant: %w", err)
	}
	return m, nil
}

func (r *merchantRepository) Get(id string) (domain.Merchant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		m      domain.Merchant
		status string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, status, webhook_url, created_at
		FROM merchants
		WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &status, &m.WebhookURL, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Merchant{}, domain.ErrMerchantNotFound
		}
		return domain.Merchant{}, fmt.Errorf("select merchant: %w", err)
	}
	m.Status = domain.MerchantStatus(status)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

var _ domain.MerchantRepository = (*merchantRepository)(nil)
