package grpcsvc_test

import (
	"context"
	"math"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/fiadopay/internal/service/grpc"
	"github.com/vladislavdragonenkov/fiadopay/internal/service/payment"
	"github.com/vladislavdragonenkov/fiadopay/internal/service/validation"
	"github.com/vladislavdragonenkov/fiadopay/internal/storage/memory"
)

const bufSize = 1024 * 1024

type testEnv struct {
	client    *grpcsvc.Client
	merchants domain.MerchantRepository
	payments  domain.PaymentRepository
}

type stubDeliveries struct {
	items []domain.WebhookDelivery
}

func (s *stubDeliveries) ListDeliveries(_ context.Context, paymentID string) ([]domain.WebhookDelivery, error) {
	result := make([]domain.WebhookDelivery, 0, len(s.items))
	for _, d := range s.items {
		if d.PaymentID == paymentID {
			result = append(result, d)
		}
	}
	return result, nil
}

func newTestEnv(t *testing.T, deliveries grpcsvc.DeliveryLister) *testEnv {
	t.Helper()

	logger := loggerForTests()
	payments := memory.NewPaymentRepository()
	merchants := memory.NewMerchantRepository()
	manager := payment.NewManager(
		payments,
		validation.NewGate(validation.DefaultThresholds()),
		nil,
		nil,
		payment.DefaultConfig(),
		payment.WithLogger(logger),
	)

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	grpcsvc.RegisterPaymentServiceServer(server, grpcsvc.NewPaymentService(manager, merchants, deliveries, logger))
	go func() {
		_ = server.Serve(listener)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return listener.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})

	return &testEnv{client: grpcsvc.NewClient(conn), merchants: merchants, payments: payments}
}

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func (e *testEnv) registerMerchant(t *testing.T, ctx context.Context, name string) string {
	t.Helper()
	resp, err := e.client.RegisterMerchant(ctx, name, "http://merchant.local/hook")
	require.NoError(t, err)

	merchantID := resp.GetFields()["merchant"].GetStructValue().GetFields()["id"].GetStringValue()
	require.NotEmpty(t, merchantID)
	require.Equal(t, "FAKE-"+merchantID, resp.GetFields()["token"].GetStringValue())
	return merchantID
}

func requireCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, status.Code(err), "unexpected status: %v", err)
}

func TestPaymentService_CreateAndGetCardPayment(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	ctx := testCtx(t)
	merchantID := env.registerMerchant(t, ctx, "Loja")

	created, err := env.client.CreatePayment(grpcsvc.WithMerchant(ctx, merchantID), map[string]any{
		"method":          "card",
		"currency":        "BRL",
		"amount":          "250.50",
		"installments":    12,
		"metadataOrderId": "order-1",
	})
	require.NoError(t, err)

	fields := created.GetFields()
	paymentID := fields["id"].GetStringValue()
	require.True(t, strings.HasPrefix(paymentID, "pay_"))
	require.Len(t, paymentID, len("pay_")+8)
	require.Equal(t, "PENDING", fields["status"].GetStringValue())
	require.Equal(t, "CARD", fields["method"].GetStringValue())
	require.Equal(t, "250.50", fields["amount"].GetStringValue())
	require.Equal(t, "282.27", fields["totalWithInterest"].GetStringValue())
	require.Equal(t, 1.0, fields["monthlyInterest"].GetNumberValue())
	require.Equal(t, float64(12), fields["installments"].GetNumberValue())
	require.Equal(t, merchantID, fields["merchantId"].GetStringValue())

	got, err := env.client.GetPayment(ctx, paymentID)
	require.NoError(t, err)
	require.Equal(t, paymentID, got.GetFields()["id"].GetStringValue())
	require.Equal(t, "order-1", got.GetFields()["metadataOrderId"].GetStringValue())
}

func TestPaymentService_SingleInstallmentHasNoInterest(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	ctx := testCtx(t)
	merchantID := env.registerMerchant(t, ctx, "Loja")

	created, err := env.client.CreatePayment(grpcsvc.WithMerchant(ctx, merchantID), map[string]any{
		"method":   "PIX",
		"currency": "BRL",
		"amount":   100,
	})
	require.NoError(t, err)

	fields := created.GetFields()
	require.Equal(t, "100.00", fields["totalWithInterest"].GetStringValue())
	require.Equal(t, float64(1), fields["installments"].GetNumberValue())
	_, isNull := fields["monthlyInterest"].GetKind().(*structpb.Value_NullValue)
	require.True(t, isNull, "monthlyInterest must be null, got %v", fields["monthlyInterest"])
}

func TestPaymentService_IdempotentReplay(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	ctx := testCtx(t)
	merchantID := env.registerMerchant(t, ctx, "Loja")
	callCtx := grpcsvc.WithIdempotencyKey(grpcsvc.WithMerchant(ctx, merchantID), "key-1")

	req := map[string]any{"method": "PIX", "currency": "BRL", "amount": "10.00"}
	first, err := env.client.CreatePayment(callCtx, req)
	require.NoError(t, err)
	second, err := env.client.CreatePayment(callCtx, req)
	require.NoError(t, err)

	require.Equal(t, first.GetFields()["id"].GetStringValue(), second.GetFields()["id"].GetStringValue())
}

func TestPaymentService_CreatePaymentRejections(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	ctx := testCtx(t)
	merchantID := env.registerMerchant(t, ctx, "Loja")
	authed := grpcsvc.WithMerchant(ctx, merchantID)

	tests := []struct {
		name    string
		ctx     context.Context
		req     map[string]any
		code    codes.Code
		message string
	}{
		{
			name: "missing authorization",
			ctx:  ctx,
			req:  map[string]any{"method": "PIX", "currency": "BRL", "amount": "10"},
			code: codes.Unauthenticated,
		},
		{
			name: "unknown merchant",
			ctx:  grpcsvc.WithMerchant(ctx, "nobody"),
			req:  map[string]any{"method": "PIX", "currency": "BRL", "amount": "10"},
			code: codes.Unauthenticated,
		},
		{
			name:    "installments not allowed for method",
			ctx:     authed,
			req:     map[string]any{"method": "PIX", "currency": "BRL", "amount": "10", "installments": 2},
			code:    codes.InvalidArgument,
			message: validation.ReasonInstallmentsInvalid,
		},
		{
			name:    "unsupported method",
			ctx:     authed,
			req:     map[string]any{"method": "CRYPTO", "currency": "BRL", "amount": "10"},
			code:    codes.InvalidArgument,
			message: validation.ReasonMethodNotSupported,
		},
		{
			name:    "zero amount",
			ctx:     authed,
			req:     map[string]any{"method": "PIX", "currency": "BRL", "amount": "0"},
			code:    codes.InvalidArgument,
			message: payment.ReasonAmountInvalid,
		},
		{
			name: "malformed amount",
			ctx:  authed,
			req:  map[string]any{"method": "PIX", "currency": "BRL", "amount": "ten"},
			code: codes.InvalidArgument,
		},
		{
			name: "NaN amount",
			ctx:  authed,
			req:  map[string]any{"method": "PIX", "currency": "BRL", "amount": math.NaN()},
			code: codes.InvalidArgument,
		},
		{
			name: "infinite amount",
			ctx:  authed,
			req:  map[string]any{"method": "PIX", "currency": "BRL", "amount": math.Inf(1)},
			code: codes.InvalidArgument,
		},
		{
			name: "fractional installments",
			ctx:  authed,
			req:  map[string]any{"method": "CARD", "currency": "BRL", "amount": "10", "installments": 1.5},
			code: codes.InvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.client.CreatePayment(tt.ctx, tt.req)
			requireCode(t, err, tt.code)
			if tt.message != "" {
				require.Equal(t, tt.message, status.Convert(err).Message())
			}
		})
	}
}

func TestPaymentService_InactiveMerchantIsUnauthenticated(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	ctx := testCtx(t)
	inactive, err := env.merchants.Create(domain.Merchant{Name: "Old", Status: domain.MerchantStatusInactive})
	require.NoError(t, err)

	_, err = env.client.CreatePayment(grpcsvc.WithMerchant(ctx, inactive.ID), map[string]any{
		"method": "PIX", "currency": "BRL", "amount": "10",
	})
	requireCode(t, err, codes.Unauthenticated)
}

func TestPaymentService_Refund(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	ctx := testCtx(t)
	owner := env.registerMerchant(t, ctx, "Owner")
	other := env.registerMerchant(t, ctx, "Other")

	created, err := env.client.CreatePayment(grpcsvc.WithMerchant(ctx, owner), map[string]any{
		"method": "DEBIT", "currency": "BRL", "amount": "42.00",
	})
	require.NoError(t, err)
	paymentID := created.GetFields()["id"].GetStringValue()

	_, err = env.client.RefundPayment(grpcsvc.WithMerchant(ctx, other), paymentID)
	requireCode(t, err, codes.PermissionDenied)
	stored, err := env.payments.Get(paymentID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPending, stored.Status)

	receipt, err := env.client.RefundPayment(grpcsvc.WithMerchant(ctx, owner), paymentID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(receipt.GetFields()["id"].GetStringValue(), "ref_"))
	require.Equal(t, "PENDING", receipt.GetFields()["status"].GetStringValue())

	got, err := env.client.GetPayment(ctx, paymentID)
	require.NoError(t, err)
	require.Equal(t, "REFUNDED", got.GetFields()["status"].GetStringValue())

	_, err = env.client.RefundPayment(grpcsvc.WithMerchant(ctx, owner), "pay_missing")
	requireCode(t, err, codes.NotFound)
}

func TestPaymentService_GetPaymentErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	ctx := testCtx(t)

	_, err := env.client.GetPayment(ctx, "pay_missing")
	requireCode(t, err, codes.NotFound)

	_, err = env.client.GetPayment(ctx, "")
	requireCode(t, err, codes.InvalidArgument)
}

func TestPaymentService_ListPaymentMethods(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	resp, err := env.client.ListPaymentMethods(testCtx(t))
	require.NoError(t, err)

	methods := resp.GetFields()["methods"].GetListValue().GetValues()
	require.Len(t, methods, 4)
	card := methods[0].GetStructValue().GetFields()
	require.Equal(t, "CARD", card["code"].GetStringValue())
	require.Equal(t, float64(12), card["maxInstallments"].GetNumberValue())
}

func TestPaymentService_ListDeliveries(t *testing.T) {
	t.Parallel()

	deliveries := &stubDeliveries{}
	env := newTestEnv(t, deliveries)
	ctx := testCtx(t)
	owner := env.registerMerchant(t, ctx, "Owner")
	other := env.registerMerchant(t, ctx, "Other")

	created, err := env.client.CreatePayment(grpcsvc.WithMerchant(ctx, owner), map[string]any{
		"method": "BOLETO", "currency": "BRL", "amount": "99.90",
	})
	require.NoError(t, err)
	paymentID := created.GetFields()["id"].GetStringValue()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	deliveries.items = []domain.WebhookDelivery{
		{ID: 1, EventID: "evt_1", EventType: domain.EventTypePaymentUpdated, PaymentID: paymentID, Attempts: 2, LastAttemptAt: &at},
		{ID: 2, EventID: "evt_2", EventType: domain.EventTypePaymentUpdated, PaymentID: "pay_other"},
	}

	resp, err := env.client.ListDeliveries(grpcsvc.WithMerchant(ctx, owner), paymentID)
	require.NoError(t, err)
	items := resp.GetFields()["deliveries"].GetListValue().GetValues()
	require.Len(t, items, 1)
	first := items[0].GetStructValue().GetFields()
	require.Equal(t, "evt_1", first["eventId"].GetStringValue())
	require.Equal(t, float64(2), first["attempts"].GetNumberValue())
	require.Equal(t, "2026-01-02T03:04:05Z", first["lastAttemptAt"].GetStringValue())

	_, err = env.client.ListDeliveries(grpcsvc.WithMerchant(ctx, other), paymentID)
	requireCode(t, err, codes.PermissionDenied)
}

func TestPaymentService_RegisterMerchantValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	ctx := testCtx(t)

	_, err := env.client.RegisterMerchant(ctx, "", "")
	requireCode(t, err, codes.InvalidArgument)

	_, err = env.client.RegisterMerchant(ctx, "Loja", "ftp://merchant.local")
	requireCode(t, err, codes.InvalidArgument)

	resp, err := env.client.RegisterMerchant(ctx, "Sem webhook", "")
	require.NoError(t, err)
	require.Equal(t, "ACTIVE", resp.GetFields()["merchant"].GetStructValue().GetFields()["status"].GetStringValue())
}
