package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
	"github.com/vladislavdragonenkov/fiadopay/internal/metrics"
	"github.com/vladislavdragonenkov/fiadopay/internal/scheduler"
	"github.com/vladislavdragonenkov/fiadopay/internal/service/validation"
)

const (
	defaultProcessingDelay = 1500 * time.Millisecond
	defaultFailureRate     = 0.15

	refundStatusPending = "PENDING"
)

// Тексты отказов для некорректной суммы и валюты.
const (
	ReasonAmountInvalid   = "Valor deve ser maior que zero"
	ReasonCurrencyMissing = "Moeda é obrigatória"
)

// Dispatcher: часть планировщика, нужная менеджеру.
type Dispatcher interface {
	SubmitProcessing(task scheduler.Task) error
	After(delay time.Duration, task scheduler.Task) error
}

// Notifier отправляет мерчанту уведомление о текущем состоянии платежа.
type Notifier interface {
	Notify(ctx context.Context, payment domain.Payment) error
}

// Config задаёт задержку обработки и долю отказов симулятора.
type Config struct {
	ProcessingDelay time.Duration
	FailureRate     float64
}

// DefaultConfig возвращает задержку 1.5s и 15% отказов.
func DefaultConfig() Config {
	return Config{
		ProcessingDelay: defaultProcessingDelay,
		FailureRate:     defaultFailureRate,
	}
}

// CreatePaymentRequest: входные данные для создания платежа.
// Installments == 0 означает, что клиент не передал число парцел.
type CreatePaymentRequest struct {
	Method          string
	Currency        string
	Amount          decimal.Decimal
	Installments    int
	MetadataOrderID string
}

// RefundReceipt: ответ на запрос возврата.
type RefundReceipt struct {
	ID     string
	Status string
}

// Option настраивает Manager.
type Option func(*Manager)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics подключает метрики.
func WithMetrics(metrics *metrics.PaymentMetrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithOutbox включает запись доменных событий в outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(m *Manager) {
		m.outbox = outbox
	}
}

// WithRandom подменяет источник случайных чисел в [0, 1).
func WithRandom(rnd func() float64) Option {
	return func(m *Manager) {
		if rnd != nil {
			m.rnd = rnd
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов платежей.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		if newID != nil {
			m.newID = newID
		}
	}
}

// Manager управляет жизненным циклом платежа: создание, отложенная обработка, возврат.
type Manager struct {
	payments   domain.PaymentRepository
	gate       *validation.Gate
	dispatcher Dispatcher
	notifier   Notifier
	outbox     domain.OutboxRepository
	cfg        Config

	logger  *log.Entry
	metrics *metrics.PaymentMetrics
	rnd     func() float64
	now     func() time.Time
	newID   func() string
}

// NewManager создаёт менеджер платежей.
func NewManager(
	payments domain.PaymentRepository,
	gate *validation.Gate,
	dispatcher Dispatcher,
	notifier Notifier,
	cfg Config,
	options ...Option,
) *Manager {
	if cfg.ProcessingDelay < 0 {
		cfg.ProcessingDelay = 0
	}
	if gate == nil {
		gate = validation.NewGate(validation.DefaultThresholds())
	}

	m := &Manager{
		payments:   payments,
		gate:       gate,
		dispatcher: dispatcher,
		notifier:   notifier,
		cfg:        cfg,
		rnd:        rand.Float64,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      newPaymentID,
	}
	for _, option := range options {
		option(m)
	}
	if m.logger == nil {
		m.logger = log.WithField("component", "payment-manager")
	}
	return m
}

func newPaymentID() string {
	return "pay_" + uuid.NewString()[:8]
}

func newRefundID() string {
	return "ref_" + uuid.NewString()
}

// CreatePayment проверяет запрос, сохраняет платёж в PENDING и планирует обработку.
// Повтор с тем же ключом идемпотентности возвращает уже сохранённый платёж без побочных эффектов.
func (m *Manager) CreatePayment(ctx context.Context, merchantID string, req CreatePaymentRequest, idempotencyKey string) (domain.Payment, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey != "" {
		existing, err := m.payments.FindByIdempotencyKey(merchantID, idempotencyKey)
		if err == nil {
			m.logger.WithFields(log.Fields{
				"payment_id":  existing.ID,
				"merchant_id": merchantID,
			}).Debug("idempotent replay, returning stored payment")
			return existing, nil
		}
		if !errors.Is(err, domain.ErrPaymentNotFound) {
			return domain.Payment{}, fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return domain.Payment{}, err
	}

	installments := req.Installments
	if installments == 0 {
		installments = 1
	}
	if err := m.validate(req, installments); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			m.metrics.RecordPaymentRejected(verr.Reason)
		}
		return domain.Payment{}, err
	}

	method := domain.NormalizePaymentMethod(req.Method)
	quote := Price(method, req.Amount, installments)
	now := m.now()
	payment := domain.Payment{
		ID:                m.newID(),
		MerchantID:        merchantID,
		Method:            method,
		Amount:            req.Amount,
		Currency:          strings.TrimSpace(req.Currency),
		Installments:      installments,
		MonthlyInterest:   quote.MonthlyInterest,
		TotalWithInterest: quote.Total,
		Status:            domain.PaymentStatusPending,
		IdempotencyKey:    idempotencyKey,
		MetadataOrderID:   req.MetadataOrderID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := m.payments.Create(payment); err != nil {
		if errors.Is(err, domain.ErrPaymentAlreadyExists) && idempotencyKey != "" {
			// Параллельный запрос с тем же ключом успел сохранить платёж первым.
			if stored, findErr := m.payments.FindByIdempotencyKey(merchantID, idempotencyKey); findErr == nil {
				return stored, nil
			}
		}
		return domain.Payment{}, fmt.Errorf("persist payment: %w", err)
	}

	logger := m.logger.WithFields(log.Fields{
		"payment_id":  payment.ID,
		"merchant_id": merchantID,
		"method":      payment.Method,
	})
	logger.Info("payment accepted")
	m.metrics.RecordPaymentCreated(string(payment.Method))

	m.scheduleProcessing(payment.ID, logger)
	m.emitEvent(payment, domain.EventPaymentCreated)

	return payment, nil
}

func (m *Manager) validate(req CreatePaymentRequest, installments int) error {
	if req.Amount.Sign() <= 0 {
		return domain.NewValidationError(ReasonAmountInvalid)
	}
	if strings.TrimSpace(req.Currency) == "" {
		return domain.NewValidationError(ReasonCurrencyMissing)
	}
	return m.gate.Validate(req.Method, installments, req.Amount)
}

// scheduleProcessing откладывает обработку на ProcessingDelay: таймер передаёт задачу
// в пул обработки, поток запроса не блокируется.
func (m *Manager) scheduleProcessing(paymentID string, logger *log.Entry) {
	if m.dispatcher == nil {
		logger.Warn("no dispatcher configured, payment will stay pending")
		return
	}

	err := m.dispatcher.After(m.cfg.ProcessingDelay, func(context.Context) {
		submitErr := m.dispatcher.SubmitProcessing(func(ctx context.Context) {
			if err := m.ProcessPayment(ctx, paymentID); err != nil {
				logger.WithError(err).Error("payment processing failed")
			}
		})
		if submitErr != nil {
			logger.WithError(submitErr).Warn("processing task rejected")
		}
	})
	if err != nil {
		logger.WithError(err).Warn("failed to schedule payment processing")
	}
}

// GetPayment возвращает платёж или domain.ErrPaymentNotFound.
func (m *Manager) GetPayment(_ context.Context, paymentID string) (domain.Payment, error) {
	payment, err := m.payments.Get(paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	return payment, nil
}

// Refund переводит платёж в REFUNDED и уведомляет мерчанта.
// Чужой платёж отклоняется с domain.ErrForbidden без изменений.
func (m *Manager) Refund(ctx context.Context, merchantID, paymentID string) (RefundReceipt, error) {
	payment, err := m.payments.Get(paymentID)
	if err != nil {
		return RefundReceipt{}, err
	}
	if !payment.OwnedBy(merchantID) {
		m.logger.WithFields(log.Fields{
			"payment_id":  paymentID,
			"merchant_id": merchantID,
		}).Warn("refund requested by another merchant")
		return RefundReceipt{}, domain.ErrForbidden
	}

	payment.MarkRefunded(m.now())
	if err := m.payments.Save(payment); err != nil {
		return RefundReceipt{}, fmt.Errorf("persist refund: %w", err)
	}

	logger := m.logger.WithFields(log.Fields{
		"payment_id":  paymentID,
		"merchant_id": merchantID,
	})
	logger.Info("payment refunded")
	m.metrics.RecordRefund()

	m.notify(ctx, payment, logger)
	m.emitEvent(payment, domain.EventPaymentRefunded)

	return RefundReceipt{ID: newRefundID(), Status: refundStatusPending}, nil
}

// ProcessPayment решает исход платежа и уведомляет мерчанта.
// Отсутствующий платёж пропускается молча, уже завершённый не меняется.
func (m *Manager) ProcessPayment(ctx context.Context, paymentID string) error {
	payment, err := m.payments.Get(paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			m.logger.WithField("payment_id", paymentID).Debug("payment vanished before processing")
			return nil
		}
		return fmt.Errorf("load payment: %w", err)
	}

	logger := m.logger.WithField("payment_id", paymentID)
	approved := m.rnd() > m.cfg.FailureRate
	if err := payment.Resolve(approved, m.now()); err != nil {
		logger.WithField("status", payment.Status).Debug("payment already resolved, skipping")
		return nil
	}
	if err := m.payments.SaveIfStatus(payment, domain.PaymentStatusPending); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			logger.WithField("outcome", payment.Status).Info("payment changed during processing, outcome discarded")
			return nil
		}
		return fmt.Errorf("persist outcome: %w", err)
	}

	logger.WithField("status", payment.Status).Info("payment processed")
	m.metrics.RecordPaymentProcessed(string(payment.Status))

	m.notify(ctx, payment, logger)
	if approved {
		m.emitEvent(payment, domain.EventPaymentApproved)
	} else {
		m.emitEvent(payment, domain.EventPaymentDeclined)
	}
	return nil
}

// SupportedMethods возвращает таблицу способов оплаты.
func (m *Manager) SupportedMethods() []validation.MethodInfo {
	return m.gate.SupportedMethods()
}

func (m *Manager) notify(ctx context.Context, payment domain.Payment, logger *log.Entry) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, payment); err != nil {
		logger.WithError(err).Warn("failed to enqueue webhook notification")
	}
}

func (m *Manager) emitEvent(payment domain.Payment, eventType string) {
	if m.outbox == nil {
		return
	}

	payload := map[string]interface{}{
		"payment_id":          payment.ID,
		"merchant_id":         payment.MerchantID,
		"method":              payment.Method,
		"status":              payment.Status,
		"amount":              payment.Amount.StringFixed(minorUnitScale),
		"total_with_interest": payment.TotalWithInterest.StringFixed(minorUnitScale),
		"currency":            payment.Currency,
		"ts":                  payment.UpdatedAt.Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"payment_id": payment.ID,
			"event":      eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: domain.AggregatePayment,
		AggregateID:   payment.ID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := m.outbox.Enqueue(msg); err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"payment_id": payment.ID,
			"event":      eventType,
		}).Error("enqueue event failed")
		return
	}
	m.metrics.RecordOutboxEvent()
}
