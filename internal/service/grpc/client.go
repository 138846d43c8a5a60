package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client: тонкая клиентская обёртка над fiadopay.v1.PaymentService.
// Авторизацию и ключ идемпотентности передают через WithMerchant и WithIdempotencyKey.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient создаёт клиент поверх готового соединения.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) RegisterMerchant(ctx context.Context, name, webhookURL string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodRegisterMerchant, map[string]any{
		"name":       name,
		"webhookUrl": webhookURL,
	}, opts...)
}

// CreatePayment передаёт сумму строкой, чтобы не терять точность.
func (c *Client) CreatePayment(ctx context.Context, req map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodCreatePayment, req, opts...)
}

func (c *Client) GetPayment(ctx context.Context, paymentID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodGetPayment, map[string]any{"paymentId": paymentID}, opts...)
}

func (c *Client) RefundPayment(ctx context.Context, paymentID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodRefundPayment, map[string]any{"paymentId": paymentID}, opts...)
}

func (c *Client) ListDeliveries(ctx context.Context, paymentID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodListDeliveries, map[string]any{"paymentId": paymentID}, opts...)
}

func (c *Client) ListPaymentMethods(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodListPaymentMethods, nil, opts...)
}

func (c *Client) call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
