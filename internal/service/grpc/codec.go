package grpcsvc

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
	"github.com/vladislavdragonenkov/fiadopay/internal/service/validation"
)

// moneyScale: денежные суммы отдаются строкой с двумя знаками после запятой.
const moneyScale = 2

func stringField(in *structpb.Struct, name string) string {
	if in == nil {
		return ""
	}
	v, ok := in.GetFields()[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

// decimalField принимает сумму строкой ("250.50") или числом. Отсутствие поля даёт ноль.
func decimalField(in *structpb.Struct, name string) (decimal.Decimal, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return decimal.Zero, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		amount, err := decimal.NewFromString(strings.TrimSpace(kind.StringValue))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s must be a decimal number", name)
		}
		return amount, nil
	case *structpb.Value_NumberValue:
		// NewFromFloat паникует на NaN и бесконечностях.
		n := kind.NumberValue
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, fmt.Errorf("%s must be a finite number", name)
		}
		return decimal.NewFromFloat(n), nil
	case *structpb.Value_NullValue:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("%s must be a decimal number", name)
	}
}

func intField(in *structpb.Struct, name string) (int, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return 0, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return int(n), nil
	case *structpb.Value_NullValue:
		return 0, nil
	default:
		return 0, fmt.Errorf("%s must be an integer", name)
	}
}

func formatTime(at time.Time) string {
	if at.IsZero() {
		return ""
	}
	return at.UTC().Format(time.RFC3339Nano)
}

func paymentFields(p domain.Payment) map[string]any {
	var interest any
	if p.MonthlyInterest != nil {
		interest = *p.MonthlyInterest
	}
	return map[string]any{
		"id":                p.ID,
		"merchantId":        p.MerchantID,
		"status":            string(p.Status),
		"method":            string(p.Method),
		"amount":            p.Amount.StringFixed(moneyScale),
		"currency":          p.Currency,
		"installments":      p.Installments,
		"monthlyInterest":   interest,
		"totalWithInterest": p.TotalWithInterest.StringFixed(moneyScale),
		"metadataOrderId":   p.MetadataOrderID,
		"createdAt":         formatTime(p.CreatedAt),
		"updatedAt":         formatTime(p.UpdatedAt),
	}
}

func merchantFields(m domain.Merchant) map[string]any {
	return map[string]any{
		"id":         m.ID,
		"name":       m.Name,
		"status":     string(m.Status),
		"webhookUrl": m.WebhookURL,
		"createdAt":  formatTime(m.CreatedAt),
	}
}

func deliveryFields(d domain.WebhookDelivery) map[string]any {
	var lastAttempt any
	if d.LastAttemptAt != nil {
		lastAttempt = formatTime(*d.LastAttemptAt)
	}
	return map[string]any{
		"id":            d.ID,
		"eventId":       d.EventID,
		"eventType":     d.EventType,
		"paymentId":     d.PaymentID,
		"targetUrl":     d.TargetURL,
		"attempts":      d.Attempts,
		"delivered":     d.Delivered,
		"lastAttemptAt": lastAttempt,
		"createdAt":     formatTime(d.CreatedAt),
	}
}

func methodFields(info validation.MethodInfo) map[string]any {
	return map[string]any{
		"code":            string(info.Code),
		"description":     info.Description,
		"maxInstallments": info.MaxInstallments,
	}
}

// listValue собирает []any для structpb: NewStruct не принимает []map[string]any.
func listValue[T any](items []T, convert func(T) map[string]any) []any {
	result := make([]any, 0, len(items))
	for _, item := range items {
		result = append(result, convert(item))
	}
	return result
}
