package validation

import (
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
)

// Тексты отказов, которые получает клиент. Порядок проверок наблюдаем снаружи.
const (
	ReasonMethodNotSupported  = "Método de pagamento não suportado"
	ReasonInstallmentsInvalid = "Número de parcelas inválido para este método"
	ReasonFraudRejected       = "Pagamento rejeitado por validação anti-fraude"
)

const (
	defaultAlertThreshold      = 5000
	defaultSuspiciousThreshold = 10000
	defaultMaxInstallments     = 12
)

// MethodInfo описывает поддерживаемый способ оплаты.
type MethodInfo struct {
	Code            domain.PaymentMethod
	Description     string
	MaxInstallments int
}

var methodTable = []MethodInfo{
	{Code: domain.PaymentMethodCard, Description: "Cartão de Crédito", MaxInstallments: 12},
	{Code: domain.PaymentMethodPix, Description: "PIX", MaxInstallments: 1},
	{Code: domain.PaymentMethodDebit, Description: "Débito em Conta", MaxInstallments: 1},
	{Code: domain.PaymentMethodBoleto, Description: "Boleto Bancário", MaxInstallments: 1},
}

// Thresholds задаёт пороги антифрода.
type Thresholds struct {
	Alert           decimal.Decimal
	Suspicious      decimal.Decimal
	MaxInstallments int
}

// DefaultThresholds возвращает пороги по умолчанию: 5000 / 10000 / 12 парцел.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Alert:           decimal.NewFromInt(defaultAlertThreshold),
		Suspicious:      decimal.NewFromInt(defaultSuspiciousThreshold),
		MaxInstallments: defaultMaxInstallments,
	}
}

// AlertObserver получает сигнал о крупной сумме, прошедшей антифрод.
type AlertObserver interface {
	RecordFraudAlert()
}

// Option настраивает Gate.
type Option func(*Gate)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithAlertObserver задаёт получателя сигналов о крупных суммах.
func WithAlertObserver(observer AlertObserver) Option {
	return func(g *Gate) {
		g.observer = observer
	}
}

// Gate: набор чистых проверок способа оплаты, парцел и антифрода.
type Gate struct {
	thresholds Thresholds
	rules      []fraudRule
	methods    map[domain.PaymentMethod]MethodInfo
	logger     *log.Entry
	observer   AlertObserver
}

// NewGate создаёт Gate. Незаданные пороги заменяются значениями по умолчанию.
func NewGate(thresholds Thresholds, options ...Option) *Gate {
	defaults := DefaultThresholds()
	if thresholds.Alert.Sign() <= 0 {
		thresholds.Alert = defaults.Alert
	}
	if thresholds.Suspicious.Sign() <= 0 {
		thresholds.Suspicious = defaults.Suspicious
	}
	if thresholds.MaxInstallments <= 0 {
		thresholds.MaxInstallments = defaults.MaxInstallments
	}

	g := &Gate{
		thresholds: thresholds,
		methods:    make(map[domain.PaymentMethod]MethodInfo, len(methodTable)),
	}
	for _, option := range options {
		option(g)
	}
	if g.logger == nil {
		g.logger = log.WithField("component", "validation-gate")
	}
	for _, info := range methodTable {
		g.methods[info.Code] = info
	}
	g.rules = g.buildRules()

	return g
}

// MethodSupported проверяет код способа оплаты без учёта регистра.
func (g *Gate) MethodSupported(method string) bool {
	_, ok := g.methods[domain.NormalizePaymentMethod(method)]
	return ok
}

// InstallmentsAllowed проверяет число парцел для способа оплаты.
func (g *Gate) InstallmentsAllowed(method string, count int) bool {
	info, ok := g.methods[domain.NormalizePaymentMethod(method)]
	if !ok {
		return false
	}
	return count >= 1 && count <= info.MaxInstallments
}

// PassesFraudCheck прогоняет правила антифрода по порядку.
func (g *Gate) PassesFraudCheck(amount decimal.Decimal, installments int) bool {
	for _, rule := range g.rules {
		if !rule.check(amount, installments) {
			g.logger.WithFields(log.Fields{
				"rule":         rule.name,
				"amount":       amount.String(),
				"installments": installments,
			}).Warn("payment rejected by fraud rule")
			return false
		}
	}
	return true
}

// FraudRiskScore возвращает рекомендательную оценку риска: 0, 50 или 100.
func (g *Gate) FraudRiskScore(amount decimal.Decimal) int {
	switch {
	case amount.GreaterThan(g.thresholds.Suspicious):
		return 100
	case amount.GreaterThan(g.thresholds.Alert):
		return 50
	default:
		return 0
	}
}

// SupportedMethods возвращает таблицу способов оплаты в порядке объявления.
func (g *Gate) SupportedMethods() []MethodInfo {
	result := make([]MethodInfo, len(methodTable))
	copy(result, methodTable)
	return result
}

// Validate выполняет проверки в фиксированном порядке: способ оплаты, парцелы, антифрод.
// Возвращает *domain.ValidationError на первой неудаче.
func (g *Gate) Validate(method string, installments int, amount decimal.Decimal) error {
	if !g.MethodSupported(method) {
		g.logger.WithField("method", method).Warn("payment method is not supported")
		return domain.NewValidationError(ReasonMethodNotSupported)
	}
	if !g.InstallmentsAllowed(method, installments) {
		g.logger.WithFields(log.Fields{
			"method":       method,
			"installments": installments,
		}).Warn("installments are not allowed for method")
		return domain.NewValidationError(ReasonInstallmentsInvalid)
	}
	if !g.PassesFraudCheck(amount, installments) {
		return domain.NewValidationError(ReasonFraudRejected)
	}
	return nil
}
