package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
)

// Event: конверт события, который получает мерчант.
// Порядок полей задаёт порядок ключей в JSON.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData: полезная нагрузка события payment.updated.
type EventData struct {
	PaymentID  string `json:"paymentId"`
	Status     string `json:"status"`
	OccurredAt string `json:"occurredAt"`
}

func newEventID() string {
	return "evt_" + uuid.NewString()[:8]
}

// BuildEvent собирает событие по текущему состоянию платежа и сериализует его.
func BuildEvent(eventID string, payment domain.Payment, occurredAt time.Time) (Event, []byte, error) {
	event := Event{
		ID:   eventID,
		Type: domain.EventTypePaymentUpdated,
		Data: EventData{
			PaymentID:  payment.ID,
			Status:     string(payment.Status),
			OccurredAt: formatInstant(occurredAt),
		},
	}
	body, err := json.Marshal(event)
	if err != nil {
		return Event{}, nil, fmt.Errorf("marshal webhook event: %w", err)
	}
	return event, body, nil
}

// formatInstant печатает момент в UTC с минимальной группой долей секунды (0, 3, 6 или 9 цифр).
func formatInstant(at time.Time) string {
	at = at.UTC()
	nanos := at.Nanosecond()
	switch {
	case nanos == 0:
		return at.Format("2006-01-02T15:04:05Z")
	case nanos%1_000_000 == 0:
		return at.Format("2006-01-02T15:04:05.000Z")
	case nanos%1_000 == 0:
		return at.Format("2006-01-02T15:04:05.000000Z")
	default:
		return at.Format("2006-01-02T15:04:05.000000000Z")
	}
}

// Sign возвращает base64(HMAC-SHA256(secret, body)).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify проверяет подпись за постоянное время.
func Verify(secret string, body []byte, signature string) bool {
	expected, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
