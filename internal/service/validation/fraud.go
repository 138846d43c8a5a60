package validation

import (
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// fraudRule: именованное правило антифрода. false означает отказ.
type fraudRule struct {
	name  string
	check func(amount decimal.Decimal, installments int) bool
}

// buildRules собирает правила в порядке применения.
// Правило high-value-alert только сигнализирует и никогда не отклоняет платёж.
func (g *Gate) buildRules() []fraudRule {
	return []fraudRule{
		{
			name: "suspicious-amount",
			check: func(amount decimal.Decimal, _ int) bool {
				return !amount.GreaterThan(g.thresholds.Suspicious)
			},
		},
		{
			name: "installment-cap",
			check: func(_ decimal.Decimal, installments int) bool {
				return installments <= g.thresholds.MaxInstallments
			},
		},
		{
			name: "high-value-alert",
			check: func(amount decimal.Decimal, _ int) bool {
				if amount.GreaterThan(g.thresholds.Alert) {
					g.logger.WithFields(log.Fields{
						"amount":     amount.String(),
						"risk_score": g.FraudRiskScore(amount),
					}).Info("high value payment flagged for review")
					if g.observer != nil {
						g.observer.RecordFraudAlert()
					}
				}
				return true
			},
		},
	}
}
