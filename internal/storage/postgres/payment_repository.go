package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
)

const paymentColumns = `
	id, merchant_id, method, amount, currency, installments, monthly_interest,
	total_with_interest, status, idempotency_key, metadata_order_id, created_at, updated_at`

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
// Уникальность ключа идемпотентности обеспечивает частичный индекс
// ux_payments_merchant_idempotency.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{db: store.DB()}
}

func (r *paymentRepository) Create(p domain.Payment) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		p.ID, p.MerchantID, string(p.Method), p.Amount, p.Currency, p.Installments,
		nullFloat(p.MonthlyInterest), p.TotalWithInterest, string(p.Status),
		nullString(p.IdempotencyKey), p.MetadataOrderID, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPaymentAlreadyExists
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) Save(p domain.Payment) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2,
		    total_with_interest = $3,
		    monthly_interest = $4,
		    updated_at = $5
		WHERE id = $1
	`, p.ID, string(p.Status), p.TotalWithInterest, nullFloat(p.MonthlyInterest), p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for payment update: %w", err)
	}
	if affected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (r *paymentRepository) Get(id string) (domain.Payment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

// SaveIfStatus обновляет платёж, только пока его статус в базе равен expected.
// Отсутствие строки и чужой статус различаются дополнительным чтением.
func (r *paymentRepository) SaveIfStatus(p domain.Payment, expected domain.PaymentStatus) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2,
		    total_with_interest = $3,
		    monthly_interest = $4,
		    updated_at = $5
		WHERE id = $1 AND status = $6
	`, p.ID, string(p.Status), p.TotalWithInterest, nullFloat(p.MonthlyInterest), p.UpdatedAt.UTC(), string(expected))
	if err != nil {
		return fmt.Errorf("conditional update payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for conditional payment update: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check payment existence: %w", err)
	}
	if !exists {
		return domain.ErrPaymentNotFound
	}
	return domain.ErrInvalidTransition
}

func (r *paymentRepository) FindByIdempotencyKey(merchantID, key string) (domain.Payment, error) {
	if key == "" {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE merchant_id = $1 AND idempotency_key = $2
	`, merchantID, key)
	return scanPayment(row)
}

func scanPayment(row *sql.Row) (domain.Payment, error) {
	var (
		p        domain.Payment
		method   string
		status   string
		interest sql.NullFloat64
		key      sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.MerchantID, &method, &p.Amount, &p.Currency, &p.Installments, &interest,
		&p.TotalWithInterest, &status, &key, &p.MetadataOrderID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("scan payment: %w", err)
	}

	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	p.IdempotencyKey = key.String
	if interest.Valid {
		v := interest.Float64
		p.MonthlyInterest = &v
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
