package grpcsvc

import (
	"context"
	"errors"
	"net/url"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
	"github.com/vladislavdragonenkov/fiadopay/internal/service/payment"
	"github.com/vladislavdragonenkov/fiadopay/internal/service/validation"
)

// PaymentManager: операции жизненного цикла платежа, которые нужны API.
type PaymentManager interface {
	CreatePayment(ctx context.Context, merchantID string, req payment.CreatePaymentRequest, idempotencyKey string) (domain.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (domain.Payment, error)
	Refund(ctx context.Context, merchantID, paymentID string) (payment.RefundReceipt, error)
	SupportedMethods() []validation.MethodInfo
}

// DeliveryLister отдаёт историю доставок webhook по платежу.
type DeliveryLister interface {
	ListDeliveries(ctx context.Context, paymentID string) ([]domain.WebhookDelivery, error)
}

// PaymentService реализует fiadopay.v1.PaymentService.
type PaymentService struct {
	manager    PaymentManager
	merchants  domain.MerchantRepository
	deliveries DeliveryLister
	logger     *log.Entry
}

// NewPaymentService собирает API поверх менеджера платежей.
func NewPaymentService(
	manager PaymentManager,
	merchants domain.MerchantRepository,
	deliveries DeliveryLister,
	logger *log.Entry,
) *PaymentService {
	if logger == nil {
		logger = log.WithField("component", "payment-grpc")
	}
	return &PaymentService{
		manager:    manager,
		merchants:  merchants,
		deliveries: deliveries,
		logger:     logger,
	}
}

// RegisterMerchant заводит активного мерчанта и возвращает его токен.
func (s *PaymentService) RegisterMerchant(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := stringField(req, "name")
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	webhookURL := stringField(req, "webhookUrl")
	if webhookURL != "" {
		parsed, err := url.Parse(webhookURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return nil, status.Error(codes.InvalidArgument, "webhookUrl must be an absolute http(s) URL")
		}
	}

	merchant, err := s.merchants.Create(domain.Merchant{
		Name:       name,
		Status:     domain.MerchantStatusActive,
		WebhookURL: webhookURL,
	})
	if err != nil {
		return nil, s.toStatus(err, "RegisterMerchant")
	}
	s.logger.WithField("merchant_id", merchant.ID).Info("merchant registered")

	return newStruct(map[string]any{
		"merchant": merchantFields(merchant),
		"token":    MerchantToken(merchant.ID),
	})
}

// CreatePayment принимает платёж мерчанта. Ключ идемпотентности читается
// из метаданных "idempotency-key" и необязателен.
func (s *PaymentService) CreatePayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	merchant, err := s.authenticate(ctx)
	if err != nil {
		return nil, s.toStatus(err, "CreatePayment")
	}

	amount, err := decimalField(req, "amount")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	installments, err := intField(req, "installments")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	created, err := s.manager.CreatePayment(ctx, merchant.ID, payment.CreatePaymentRequest{
		Method:          stringField(req, "method"),
		Currency:        stringField(req, "currency"),
		Amount:          amount,
		Installments:    installments,
		MetadataOrderID: stringField(req, "metadataOrderId"),
	}, incomingHeader(ctx, idempotencyKeyHeader))
	if err != nil {
		return nil, s.toStatus(err, "CreatePayment")
	}

	return newStruct(paymentFields(created))
}

// GetPayment возвращает платёж по идентификатору.
func (s *PaymentService) GetPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	paymentID := stringField(req, "paymentId")
	if paymentID == "" {
		return nil, status.Error(codes.InvalidArgument, "paymentId is required")
	}

	found, err := s.manager.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, s.toStatus(err, "GetPayment")
	}
	return newStruct(paymentFields(found))
}

// RefundPayment возвращает средства по платежу текущего мерчанта.
func (s *PaymentService) RefundPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	merchant, err := s.authenticate(ctx)
	if err != nil {
		return nil, s.toStatus(err, "RefundPayment")
	}
	paymentID := stringField(req, "paymentId")
	if paymentID == "" {
		return nil, status.Error(codes.InvalidArgument, "paymentId is required")
	}

	receipt, err := s.manager.Refund(ctx, merchant.ID, paymentID)
	if err != nil {
		return nil, s.toStatus(err, "RefundPayment")
	}
	return newStruct(map[string]any{
		"id":     receipt.ID,
		"status": receipt.Status,
	})
}

// ListDeliveries показывает мерчанту историю уведомлений по его платежу.
func (s *PaymentService) ListDeliveries(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	merchant, err := s.authenticate(ctx)
	if err != nil {
		return nil, s.toStatus(err, "ListDeliveries")
	}
	paymentID := stringField(req, "paymentId")
	if paymentID == "" {
		return nil, status.Error(codes.InvalidArgument, "paymentId is required")
	}

	owned, err := s.manager.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, s.toStatus(err, "ListDeliveries")
	}
	if !owned.OwnedBy(merchant.ID) {
		return nil, s.toStatus(domain.ErrForbidden, "ListDeliveries")
	}

	var deliveries []domain.WebhookDelivery
	if s.deliveries != nil {
		deliveries, err = s.deliveries.ListDeliveries(ctx, paymentID)
		if err != nil {
			return nil, s.toStatus(err, "ListDeliveries")
		}
	}
	return newStruct(map[string]any{
		"deliveries": listValue(deliveries, deliveryFields),
	})
}

// ListPaymentMethods возвращает таблицу поддерживаемых способов оплаты.
func (s *PaymentService) ListPaymentMethods(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return newStruct(map[string]any{
		"methods": listValue(s.manager.SupportedMethods(), methodFields),
	})
}

// toStatus переводит доменную ошибку в gRPC-статус. Неизвестные ошибки
// логируются и скрываются за codes.Internal.
func (s *PaymentService) toStatus(err error, operation string) error {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Reason)
	case domain.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}

	s.logger.WithError(err).WithField("operation", operation).Error("request failed")
	return status.Error(codes.Internal, "internal error")
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

var _ PaymentServiceServer = (*PaymentService)(nil)
