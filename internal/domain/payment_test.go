package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizePaymentMethod(t *testing.T) {
	tests := []struct {
		raw  string
		want PaymentMethod
	}{
		{raw: "card", want: PaymentMethodCard},
		{raw: " Pix ", want: PaymentMethodPix},
		{raw: "DEBIT", want: PaymentMethodDebit},
		{raw: "boleto", want: PaymentMethodBoleto},
		{raw: "invalid", want: PaymentMethod("INVALID")},
	}

	for _, tt := range tests {
		if got := NormalizePaymentMethod(tt.raw); got != tt.want {
			t.Errorf("NormalizePaymentMethod(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestPayment_Resolve(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		from     PaymentStatus
		approved bool
		want     PaymentStatus
		wantErr  error
	}{
		{name: "pending approved", from: PaymentStatusPending, approved: true, want: PaymentStatusApproved},
		{name: "pending declined", from: PaymentStatusPending, approved: false, want: PaymentStatusDeclined},
		{name: "approved is terminal", from: PaymentStatusApproved, approved: false, want: PaymentStatusApproved, wantErr: ErrInvalidTransition},
		{name: "refunded is terminal", from: PaymentStatusRefunded, approved: true, want: PaymentStatusRefunded, wantErr: ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Payment{ID: "pay_1", Status: tt.from}
			err := p.Resolve(tt.approved, at)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if p.Status != tt.want {
				t.Fatalf("expected status %s, got %s", tt.want, p.Status)
			}
			if tt.wantErr == nil && !p.UpdatedAt.Equal(at) {
				t.Fatalf("expected UpdatedAt %s, got %s", at, p.UpdatedAt)
			}
		})
	}
}

func TestPayment_MarkRefunded(t *testing.T) {
	at := time.Now().UTC()
	for _, from := range []PaymentStatus{PaymentStatusPending, PaymentStatusApproved, PaymentStatusDeclined} {
		p := Payment{Status: from}
		p.MarkRefunded(at)
		if p.Status != PaymentStatusRefunded {
			t.Fatalf("from %s: expected REFUNDED, got %s", from, p.Status)
		}
	}
}

func TestPaymentStatus_IsTerminal(t *testing.T) {
	if PaymentStatusPending.IsTerminal() {
		t.Fatal("PENDING must not be terminal")
	}
	for _, s := range []PaymentStatus{PaymentStatusApproved, PaymentStatusDeclined, PaymentStatusRefunded} {
		if !s.IsTerminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
}

func TestMerchant(t *testing.T) {
	m := Merchant{ID: "mch_1", Status: MerchantStatusActive, WebhookURL: "  "}
	if !m.IsActive() {
		t.Fatal("expected active merchant")
	}
	if m.HasWebhook() {
		t.Fatal("blank webhook url must not count as configured")
	}

	m.WebhookURL = "http://localhost:8081/webhooks"
	m.Status = MerchantStatusInactive
	if m.IsActive() || !m.HasWebhook() {
		t.Fatalf("unexpected merchant flags: %+v", m)
	}
}

func TestWebhookDelivery_RecordAttempt(t *testing.T) {
	d := WebhookDelivery{ID: 1}
	at := time.Now().UTC()

	for i := 1; i <= 4; i++ {
		d.RecordAttempt(false, at)
		if d.Attempts != i {
			t.Fatalf("expected %d attempts, got %d", i, d.Attempts)
		}
		if !d.CanRetry(5) {
			t.Fatalf("attempt %d should allow retry", i)
		}
	}

	d.RecordAttempt(false, at)
	if d.CanRetry(5) {
		t.Fatal("fifth failed attempt is terminal")
	}
	if d.LastAttemptAt == nil || !d.LastAttemptAt.Equal(at) {
		t.Fatal("expected LastAttemptAt to be recorded")
	}

	delivered := WebhookDelivery{}
	delivered.RecordAttempt(true, at)
	if delivered.CanRetry(5) {
		t.Fatal("delivered webhook must not be retried")
	}
}
