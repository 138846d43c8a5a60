package domain

import (
	"strings"
	"time"
)

// MerchantStatus: состояние учётной записи мерчанта.
type MerchantStatus string

const (
	MerchantStatusActive   MerchantStatus = "ACTIVE"
	MerchantStatusInactive MerchantStatus = "INACTIVE"
)

// Merchant: владелец платежей и получатель webhook-уведомлений.
type Merchant struct {
	ID         string
	Name       string
	Status     MerchantStatus
	WebhookURL string
	CreatedAt  time.Time
}

// IsActive сообщает, может ли мерчант проводить операции.
func (m Merchant) IsActive() bool {
	return m.Status == MerchantStatusActive
}

// HasWebhook сообщает, настроен ли адрес для уведомлений.
func (m Merchant) HasWebhook() bool {
	return strings.TrimSpace(m.WebhookURL) != ""
}
