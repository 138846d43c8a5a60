package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
)

const deliveryColumns = `
	id, event_id, event_type, payment_id, target_url, signature, payload,
	attempts, delivered, last_attempt_at, created_at`

type deliveryRepository struct {
	db *sql.DB
}

// NewDeliveryRepository создаёт PostgreSQL-реализацию DeliveryRepository.
func NewDeliveryRepository(store *Store) domain.DeliveryRepository {
	return &deliveryRepository{db: store.DB()}
}

func (r *deliveryRepository) Save(d domain.WebhookDelivery) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if d.ID == 0 {
		var id int64
		err := r.db.QueryRowContext(ctx, `
			INSERT INTO webhook_deliveries (
				event_id, event_type, payment_id, target_url, signature, payload,
				attempts, delivered, last_attempt_at, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			RETURNING id
		`,
			d.EventID, d.EventType, d.PaymentID, d.TargetURL, d.Signature, d.Payload,
			d.Attempts, d.Delivered, d.LastAttemptAt, d.CreatedAt.UTC(),
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert webhook delivery: %w", err)
		}
		return id, nil
	}

	// Устаревший снимок с меньшим числом попыток не перезаписывает запись.
	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET attempts = $2,
		    delivered = $3,
		    last_attempt_at = $4
		WHERE id = $1 AND attempts <= $2
	`, d.ID, d.Attempts, d.Delivered, d.LastAttemptAt)
	if err != nil {
		return 0, fmt.Errorf("update webhook delivery: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected for webhook delivery: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM webhook_deliveries WHERE id = $1)`, d.ID,
		).Scan(&exists); err != nil {
			return 0, fmt.Errorf("check webhook delivery: %w", err)
		}
		if !exists {
			return 0, domain.ErrDeliveryNotFound
		}
	}
	return d.ID, nil
}

func (r *deliveryRepository) Get(id int64) (domain.WebhookDelivery, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var d domain.WebhookDelivery
	err := r.db.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = $1`, id,
	).Scan(deliveryDest(&d)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WebhookDelivery{}, domain.ErrDeliveryNotFound
		}
		return domain.WebhookDelivery{}, fmt.Errorf("select webhook delivery: %w", err)
	}
	return normalizeDelivery(d), nil
}

func (r *deliveryRepository) ListByPayment(paymentID string) ([]domain.WebhookDelivery, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM webhook_deliveries
		WHERE payment_id = $1
		ORDER BY id
	`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list webhook deliveries: %w", err)
	}
	defer rows.Close()

	result := make([]domain.WebhookDelivery, 0)
	for rows.Next() {
		var d domain.WebhookDelivery
		if err := rows.Scan(deliveryDest(&d)...); err != nil {
			return nil, fmt.Errorf("scan webhook delivery: %w", err)
		}
		result = append(result, normalizeDelivery(d))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook deliveries: %w", err)
	}
	return result, nil
}

func deliveryDest(d *domain.WebhookDelivery) []any {
	return []any{
		&d.ID, &d.EventID, &d.EventType, &d.PaymentID, &d.TargetURL, &d.Signature, &d.Payload,
		&d.Attempts, &d.Delivered, &d.LastAttemptAt, &d.CreatedAt,
	}
}

func normalizeDelivery(d domain.WebhookDelivery) domain.WebhookDelivery {
	d.CreatedAt = d.CreatedAt.UTC()
	if d.LastAttemptAt != nil {
		at := d.LastAttemptAt.UTC()
		d.LastAttemptAt = &at
	}
	return d
}

var _ domain.DeliveryRepository = (*deliveryRepository)(nil)
