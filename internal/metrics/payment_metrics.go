package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты попытки доставки webhook для метки result.
const (
	WebhookResultDelivered      = "delivered"
	WebhookResultRejected       = "rejected"
	WebhookResultTransportError = "transport_error"
)

// PaymentMetrics содержит метрики жизненного цикла платежей, доставки webhook
// и пулов планировщика. Методы безопасны для nil-получателя.
type PaymentMetrics struct {
	paymentsCreated   *prometheus.CounterVec
	paymentsRejected  *prometheus.CounterVec
	paymentsProcessed *prometheus.CounterVec
	refunds           prometheus.Counter
	fraudAlerts       prometheus.Counter
	outboxEvents      prometheus.Counter

	deliveriesCreated   prometheus.Counter
	deliveryAttempts    *prometheus.CounterVec
	deliveriesAbandoned prometheus.Counter
	attemptDuration     *prometheus.HistogramVec

	tasksInFlight *prometheus.GaugeVec
	taskPanics    *prometheus.CounterVec
}

// NewPaymentMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewPaymentMetrics() *PaymentMetrics {
	return NewPaymentMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewPaymentMetricsWithRegisterer регистрирует метрики в заданном registerer.
func NewPaymentMetricsWithRegisterer(registerer prometheus.Registerer) *PaymentMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PaymentMetrics{
		paymentsCreated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fiadopay_payments_created_total",
			Help: "Total number of payments accepted, grouped by method.",
		}, []string{"method"}),
		paymentsRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fiadopay_payments_rejected_total",
			Help: "Total number of payment requests rejected by validation.",
		}, []string{"reason"}),
		paymentsProcessed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fiadopay_payments_processed_total",
			Help: "Total number of payments resolved by asynchronous processing, grouped by status.",
		}, []string{"status"}),
		refunds: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fiadopay_payment_refunds_total",
			Help: "Total number of refunds accepted.",
		}),
		fraudAlerts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fiadopay_fraud_alerts_total",
			Help: "Total number of high value payments flagged by the fraud alert rule.",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fiadopay_outbox_events_total",
			Help: "Total number of payment events written to the outbox.",
		}),
		deliveriesCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fiadopay_webhook_deliveries_created_total",
			Help: "Total number of webhook deliveries created.",
		}),
		deliveryAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fiadopay_webhook_attempts_total",
			Help: "Total number of webhook delivery attempts grouped by result.",
		}, []string{"result"}),
		deliveriesAbandoned: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fiadopay_webhook_deliveries_abandoned_total",
			Help: "Total number of webhook deliveries that exhausted their attempts.",
		}),
		attemptDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "fiadopay_webhook_attempt_duration_seconds",
			Help:    "Duration of webhook delivery attempts in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"result"}),
		tasksInFlight: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "fiadopay_scheduler_tasks_in_flight",
			Help: "Number of tasks currently executing, grouped by pool.",
		}, []string{"pool"}),
		taskPanics: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fiadopay_scheduler_task_panics_total",
			Help: "Total number of task panics recovered at the pool boundary.",
		}, []string{"pool"}),
	}
}

// RecordPaymentCreated учитывает принятый платёж.
func (m *PaymentMetrics) RecordPaymentCreated(method string) {
	if m == nil {
		return
	}
	m.paymentsCreated.WithLabelValues(method).Inc()
}

// RecordPaymentRejected учитывает отказ валидации.
func (m *PaymentMetrics) RecordPaymentRejected(reason string) {
	if m == nil {
		return
	}
	m.paymentsRejected.WithLabelValues(reason).Inc()
}

// RecordPaymentProcessed учитывает итог асинхронной обработки.
func (m *PaymentMetrics) RecordPaymentProcessed(status string) {
	if m == nil {
		return
	}
	m.paymentsProcessed.WithLabelValues(status).Inc()
}

// RecordRefund учитывает принятый возврат.
func (m *PaymentMetrics) RecordRefund() {
	if m == nil {
		return
	}
	m.refunds.Inc()
}

// RecordFraudAlert учитывает крупную сумму, прошедшую антифрод.
func (m *PaymentMetrics) RecordFraudAlert() {
	if m == nil {
		return
	}
	m.fraudAlerts.Inc()
}

// RecordOutboxEvent учитывает событие, записанное в outbox.
func (m *PaymentMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

// RecordDeliveryCreated учитывает новую доставку webhook.
func (m *PaymentMetrics) RecordDeliveryCreated() {
	if m == nil {
		return
	}
	m.deliveriesCreated.Inc()
}

// RecordDeliveryAttempt учитывает попытку доставки и её длительность.
func (m *PaymentMetrics) RecordDeliveryAttempt(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.deliveryAttempts.WithLabelValues(result).Inc()
	m.attemptDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordDeliveryAbandoned учитывает доставку, исчерпавшую попытки.
func (m *PaymentMetrics) RecordDeliveryAbandoned() {
	if m == nil {
		return
	}
	m.deliveriesAbandoned.Inc()
}

// TaskStarted реализует scheduler.Observer.
func (m *PaymentMetrics) TaskStarted(pool string) {
	if m == nil {
		return
	}
	m.tasksInFlight.WithLabelValues(pool).Inc()
}

// TaskFinished реализует scheduler.Observer.
func (m *PaymentMetrics) TaskFinished(pool string) {
	if m == nil {
		return
	}
	m.tasksInFlight.WithLabelValues(pool).Dec()
}

// TaskPanicked реализует scheduler.Observer.
func (m *PaymentMetrics) TaskPanicked(pool string) {
	if m == nil {
		return
	}
	m.taskPanics.WithLabelValues(pool).Inc()
}
