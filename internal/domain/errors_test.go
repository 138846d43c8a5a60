package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "payment not found", err: ErrPaymentNotFound, want: true},
		{name: "delivery not found", err: ErrDeliveryNotFound, want: true},
		{name: "merchant not found", err: ErrMerchantNotFound, want: true},
		{name: "wrapped payment not found", err: fmt.Errorf("load: %w", ErrPaymentNotFound), want: true},
		{name: "forbidden", err: ErrForbidden, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("Método de pagamento não suportado")

	if err.Error() != "Método de pagamento não suportado" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatal("validation error must match ErrValidation")
	}
	if !IsValidation(fmt.Errorf("create payment: %w", err)) {
		t.Fatal("wrapped validation error must be detected")
	}

	var target *ValidationError
	if !errors.As(fmt.Errorf("wrap: %w", err), &target) {
		t.Fatal("errors.As should extract *ValidationError")
	}
	if target.Reason != err.Reason {
		t.Fatalf("expected reason %q, got %q", err.Reason, target.Reason)
	}
	if IsValidation(ErrForbidden) {
		t.Fatal("forbidden is not a validation error")
	}
}

func TestTransportError(t *testing.T) {
	cause := errors.New("connection refused")

	withCause := &TransportError{URL: "http://merchant.local/hook", Err: cause}
	if !errors.Is(withCause, ErrTransport) {
		t.Fatal("transport error must match ErrTransport")
	}
	if !errors.Is(withCause, cause) {
		t.Fatal("transport error must unwrap its cause")
	}

	badStatus := &TransportError{URL: "http://merchant.local/hook", StatusCode: 503}
	if badStatus.Error() != "post http://merchant.local/hook: unexpected status 503" {
		t.Fatalf("unexpected message: %s", badStatus.Error())
	}
	if !errors.Is(badStatus, ErrTransport) {
		t.Fatal("status error must match ErrTransport")
	}
}
