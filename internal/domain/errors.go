package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation: общий маркер для ошибок проверки входных данных платежа.
	ErrValidation = errors.New("payment validation failed")
	// ErrPaymentNotFound возвращается, если платёж не найден в репозитории.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentAlreadyExists сигнализирует о дубликате идентификатора или idempotency-key.
	ErrPaymentAlreadyExists = errors.New("payment already exists")
	// ErrDeliveryNotFound возвращается, если запись о доставке webhook отсутствует.
	ErrDeliveryNotFound = errors.New("webhook delivery not found")
	// ErrMerchantNotFound возвращается, если мерчант не найден.
	ErrMerchantNotFound = errors.New("merchant not found")
	// ErrForbidden: платёж принадлежит другому мерчанту.
	ErrForbidden = errors.New("payment belongs to another merchant")
	// ErrUnauthorized: мерчант не опознан или неактивен.
	ErrUnauthorized = errors.New("merchant is not authorized")
	// ErrInvalidTransition: запрещённый переход статуса платежа.
	ErrInvalidTransition = errors.New("invalid payment status transition")
	// ErrTransport: ошибка доставки webhook на уровне транспорта или non-2xx ответ.
	ErrTransport = errors.New("webhook transport failure")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ValidationError несёт причину отказа, которую увидит вызывающая сторона.
type ValidationError struct {
	Reason string
}

// NewValidationError создаёт ошибку валидации с текстом для клиента.
func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Is позволяет сравнивать через errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransportError описывает неудачную попытку отправки webhook.
// StatusCode равен 0, если ответа от получателя не было.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("post %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("post %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is позволяет сравнивать через errors.Is(err, ErrTransport).
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// IsNotFound проверяет, относится ли ошибка к отсутствующей сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrDeliveryNotFound) ||
		errors.Is(err, ErrMerchantNotFound)
}

// IsValidation проверяет, является ли ошибка ошибкой валидации.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
