package grpcsvc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/metadata"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
)

const (
	authorizationHeader  = "authorization"
	idempotencyKeyHeader = "idempotency-key"

	bearerPrefix = "Bearer "
	tokenPrefix  = "FAKE-"
)

// MerchantToken возвращает токен, который выдаётся мерчанту при регистрации.
func MerchantToken(merchantID string) string {
	return tokenPrefix + merchantID
}

// WithMerchant добавляет в исходящий контекст заголовок авторизации мерчанта.
func WithMerchant(ctx context.Context, merchantID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, authorizationHeader, bearerPrefix+MerchantToken(merchantID))
}

// WithIdempotencyKey добавляет ключ идемпотентности в исходящий контекст.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, idempotencyKeyHeader, key)
}

// authenticate находит активного мерчанта по заголовку "authorization: Bearer FAKE-<id>".
func (s *PaymentService) authenticate(ctx context.Context) (domain.Merchant, error) {
	raw := incomingHeader(ctx, authorizationHeader)
	if !strings.HasPrefix(raw, bearerPrefix+tokenPrefix) {
		return domain.Merchant{}, domain.ErrUnauthorized
	}
	merchantID := strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix+tokenPrefix))
	if merchantID == "" {
		return domain.Merchant{}, domain.ErrUnauthorized
	}

	merchant, err := s.merchants.Get(merchantID)
	if err != nil {
		if errors.Is(err, domain.ErrMerchantNotFound) {
			return domain.Merchant{}, domain.ErrUnauthorized
		}
		return domain.Merchant{}, err
	}
	if !merchant.IsActive() {
		return domain.Merchant{}, domain.ErrUnauthorized
	}
	return merchant, nil
}

func incomingHeader(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, value := range md.Get(key) {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
