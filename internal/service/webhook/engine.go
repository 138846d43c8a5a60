package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
	"github.com/vladislavdragonenkov/fiadopay/internal/metrics"
	"github.com/vladislavdragonenkov/fiadopay/internal/scheduler"
)

const (
	defaultMaxAttempts = 5
	defaultBackoffUnit = time.Second
)

// Dispatcher: часть планировщика, нужная движку доставки.
type Dispatcher interface {
	SubmitSend(task scheduler.Task) error
	After(delay time.Duration, task scheduler.Task) error
}

// Option настраивает Engine.
type Option func(*Engine)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMaxAttempts задаёт предел попыток на одну доставку.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithBackoffUnit задаёт шаг линейной задержки: перед попыткой k+1 ждём unit*k.
func WithBackoffUnit(unit time.Duration) Option {
	return func(e *Engine) {
		if unit > 0 {
			e.backoffUnit = unit
		}
	}
}

// WithMetrics подключает метрики доставки.
func WithMetrics(metrics *metrics.PaymentMetrics) Option {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine доставляет подписанные события payment.updated мерчантам
// с линейным повтором при неудаче.
type Engine struct {
	deliveries domain.DeliveryRepository
	merchants  domain.MerchantRepository
	sender     Sender
	dispatcher Dispatcher
	secret     string

	maxAttempts int
	backoffUnit time.Duration
	logger      *log.Entry
	metrics     *metrics.PaymentMetrics
	now         func() time.Time
}

// NewEngine создаёт движок доставки.
func NewEngine(
	deliveries domain.DeliveryRepository,
	merchants domain.MerchantRepository,
	sender Sender,
	dispatcher Dispatcher,
	secret string,
	options ...Option,
) *Engine {
	e := &Engine{
		deliveries:  deliveries,
		merchants:   merchants,
		sender:      sender,
		dispatcher:  dispatcher,
		secret:      secret,
		maxAttempts: defaultMaxAttempts,
		backoffUnit: defaultBackoffUnit,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(e)
	}
	if e.logger == nil {
		e.logger = log.WithField("component", "webhook-engine")
	}
	return e
}

// Notify фиксирует доставку текущего состояния платежа и ставит первую попытку в пул отправки.
// Мерчант без адреса webhook пропускается.
func (e *Engine) Notify(ctx context.Context, payment domain.Payment) error {
	merchant, err := e.merchants.Get(payment.MerchantID)
	if err != nil {
		if errors.Is(err, domain.ErrMerchantNotFound) {
			e.logger.WithField("merchant_id", payment.MerchantID).Debug("merchant not found, skipping webhook")
			return nil
		}
		return fmt.Errorf("load merchant: %w", err)
	}
	if !merchant.HasWebhook() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := e.now()
	event, body, err := BuildEvent(newEventID(), payment, now)
	if err != nil {
		return err
	}

	delivery := domain.WebhookDelivery{
		EventID:   event.ID,
		EventType: event.Type,
		PaymentID: payment.ID,
		TargetURL: strings.TrimSpace(merchant.WebhookURL),
		Signature: Sign(e.secret, body),
		Payload:   string(body),
		CreatedAt: now,
	}
	id, err := e.deliveries.Save(delivery)
	if err != nil {
		return fmt.Errorf("persist delivery: %w", err)
	}
	e.metrics.RecordDeliveryCreated()

	e.logger.WithFields(log.Fields{
		"delivery_id": id,
		"payment_id":  payment.ID,
		"event_id":    event.ID,
		"status":      payment.Status,
	}).Debug("webhook delivery created")

	if err := e.dispatcher.SubmitSend(e.attemptTask(id)); err != nil {
		return fmt.Errorf("submit delivery %d: %w", id, err)
	}
	return nil
}

func (e *Engine) attemptTask(id int64) scheduler.Task {
	return func(ctx context.Context) {
		if err := e.AttemptDelivery(ctx, id); err != nil {
			e.logger.WithError(err).WithField("delivery_id", id).Error("webhook attempt failed")
		}
	}
}

// AttemptDelivery выполняет одну попытку доставки и при неудаче планирует следующую.
// Следующая попытка планируется только после сохранения результата текущей.
func (e *Engine) AttemptDelivery(ctx context.Context, id int64) error {
	delivery, err := e.deliveries.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrDeliveryNotFound) {
			e.logger.WithField("delivery_id", id).Debug("delivery vanished, skipping attempt")
			return nil
		}
		return fmt.Errorf("load delivery: %w", err)
	}
	if !delivery.CanRetry(e.maxAttempts) {
		return nil
	}

	logger := e.logger.WithFields(log.Fields{
		"delivery_id": id,
		"payment_id":  delivery.PaymentID,
		"attempt":     delivery.Attempts + 1,
	})

	started := time.Now()
	sendErr := e.sender.Send(ctx, Request{
		URL:       delivery.TargetURL,
		EventType: delivery.EventType,
		Signature: delivery.Signature,
		Body:      []byte(delivery.Payload),
	})
	if sendErr != nil && ctx.Err() != nil {
		// Пул остановлен принудительно: запись остаётся в последнем завершённом состоянии.
		logger.Warn("webhook attempt abandoned on shutdown")
		return nil
	}

	delivered := sendErr == nil
	delivery.RecordAttempt(delivered, e.now())
	e.metrics.RecordDeliveryAttempt(attemptResult(sendErr), time.Since(started))

	if _, err := e.deliveries.Save(delivery); err != nil {
		return fmt.Errorf("persist attempt: %w", err)
	}

	if delivered {
		logger.Info("webhook delivered")
		return nil
	}

	var transportErr *domain.TransportError
	if errors.As(sendErr, &transportErr) && transportErr.StatusCode != 0 {
		logger = logger.WithField("status_code", transportErr.StatusCode)
	}
	logger.WithError(sendErr).Warn("webhook attempt failed")

	if !delivery.CanRetry(e.maxAttempts) {
		e.metrics.RecordDeliveryAbandoned()
		logger.Warn("webhook delivery exhausted its attempts")
		return nil
	}

	delay := e.backoffUnit * time.Duration(delivery.Attempts)
	err = e.dispatcher.After(delay, func(context.Context) {
		if submitErr := e.dispatcher.SubmitSend(e.attemptTask(id)); submitErr != nil {
			logger.WithError(submitErr).Warn("webhook retry rejected")
		}
	})
	if err != nil {
		logger.WithError(err).Warn("failed to schedule webhook retry")
	}
	return nil
}

func attemptResult(err error) string {
	if err == nil {
		return metrics.WebhookResultDelivered
	}
	var transportErr *domain.TransportError
	if errors.As(err, &transportErr) && transportErr.StatusCode != 0 {
		return metrics.WebhookResultRejected
	}
	return metrics.WebhookResultTransportError
}

// ListDeliveries возвращает историю доставок по платежу.
func (e *Engine) ListDeliveries(_ context.Context, paymentID string) ([]domain.WebhookDelivery, error) {
	return e.deliveries.ListByPayment(paymentID)
}

// MaxAttempts возвращает предел попыток.
func (e *Engine) MaxAttempts() int {
	return e.maxAttempts
}
