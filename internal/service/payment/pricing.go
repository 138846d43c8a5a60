package payment

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
)

const (
	// monthlyInterestPercent: ставка за период рассрочки в процентах.
	monthlyInterestPercent = 1.0
	minorUnitScale         = 2
)

var interestFactor = decimal.NewFromInt(1).Add(decimal.NewFromFloat(monthlyInterestPercent).Div(decimal.NewFromInt(100)))

// Quote: результат расчёта итоговой суммы.
type Quote struct {
	Total           decimal.Decimal
	MonthlyInterest *float64
}

// Price считает сумму с процентами. Сложный процент начисляется только для CARD
// при числе парцел больше одной: total = amount * 1.01^n, округление half-up до копеек.
func Price(method domain.PaymentMethod, amount decimal.Decimal, installments int) Quote {
	if method != domain.PaymentMethodCard || installments <= 1 {
		return Quote{Total: amount}
	}

	factor := decimal.NewFromInt(1)
	for i := 0; i < installments; i++ {
		factor = factor.Mul(interestFactor)
	}

	rate := monthlyInterestPercent
	return Quote{
		// Round округляет половину от нуля, для положительных сумм это half-up.
		Total:           amount.Mul(factor).Round(minorUnitScale),
		MonthlyInterest: &rate,
	}
}
