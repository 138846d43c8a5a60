package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod: код способа оплаты.
type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "CARD"
	PaymentMethodPix    PaymentMethod = "PIX"
	PaymentMethodDebit  PaymentMethod = "DEBIT"
	PaymentMethodBoleto PaymentMethod = "BOLETO"
)

// NormalizePaymentMethod приводит код способа оплаты к каноническому виду.
func NormalizePaymentMethod(raw string) PaymentMethod {
	return PaymentMethod(strings.ToUpper(strings.TrimSpace(raw)))
}

// PaymentStatus описывает состояние платежа.
type PaymentStatus string

const (
	// PaymentStatusPending: платёж создан и ждёт асинхронной обработки.
	PaymentStatusPending PaymentStatus = "PENDING"
	// PaymentStatusApproved: обработка завершилась успешно.
	PaymentStatusApproved PaymentStatus = "APPROVED"
	// PaymentStatusDeclined: обработка завершилась отказом.
	PaymentStatusDeclined PaymentStatus = "DECLINED"
	// PaymentStatusRefunded: мерчант запросил возврат.
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// IsTerminal сообщает, что автоматических переходов из статуса больше не будет.
func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentStatusPending
}

// Payment описывает платёж мерчанта.
type Payment struct {
	ID                string
	MerchantID        string
	Method            PaymentMethod
	Amount            decimal.Decimal
	Currency          string
	Installments      int
	MonthlyInterest   *float64 // nil, если проценты не начислялись.
	TotalWithInterest decimal.Decimal
	Status            PaymentStatus
	IdempotencyKey    string
	MetadataOrderID   string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Resolve фиксирует результат обработки. Допустим только переход из PENDING.
func (p *Payment) Resolve(approved bool, at time.Time) error {
	if p.Status != PaymentStatusPending {
		return ErrInvalidTransition
	}
	if approved {
		p.Status = PaymentStatusApproved
	} else {
		p.Status = PaymentStatusDeclined
	}
	p.UpdatedAt = at
	return nil
}

// MarkRefunded переводит платёж в REFUNDED из любого статуса.
func (p *Payment) MarkRefunded(at time.Time) {
	p.Status = PaymentStatusRefunded
	p.UpdatedAt = at
}

// OwnedBy проверяет принадлежность платежа мерчанту.
func (p Payment) OwnedBy(merchantID string) bool {
	return p.MerchantID == merchantID
}
