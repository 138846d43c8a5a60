package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName: полное имя gRPC-сервиса платёжного шлюза.
const ServiceName = "fiadopay.v1.PaymentService"

// Полные имена методов для клиента и интерсепторов.
const (
	MethodRegisterMerchant   = "/" + ServiceName + "/RegisterMerchant"
	MethodCreatePayment      = "/" + ServiceName + "/CreatePayment"
	MethodGetPayment         = "/" + ServiceName + "/GetPayment"
	MethodRefundPayment      = "/" + ServiceName + "/RefundPayment"
	MethodListDeliveries     = "/" + ServiceName + "/ListDeliveries"
	MethodListPaymentMethods = "/" + ServiceName + "/ListPaymentMethods"
)

// PaymentServiceServer: серверная часть API. Сообщения передаются как
// google.protobuf.Struct с полями в camelCase.
type PaymentServiceServer interface {
	RegisterMerchant(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreatePayment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPayment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefundPayment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDeliveries(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPaymentMethods(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(PaymentServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// PaymentServiceDesc описывает сервис для grpc.Server.
var PaymentServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PaymentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterMerchant", Handler: unaryHandler(MethodRegisterMerchant, PaymentServiceServer.RegisterMerchant)},
		{MethodName: "CreatePayment", Handler: unaryHandler(MethodCreatePayment, PaymentServiceServer.CreatePayment)},
		{MethodName: "GetPayment", Handler: unaryHandler(MethodGetPayment, PaymentServiceServer.GetPayment)},
		{MethodName: "RefundPayment", Handler: unaryHandler(MethodRefundPayment, PaymentServiceServer.RefundPayment)},
		{MethodName: "ListDeliveries", Handler: unaryHandler(MethodListDeliveries, PaymentServiceServer.ListDeliveries)},
		{MethodName: "ListPaymentMethods", Handler: unaryHandler(MethodListPaymentMethods, PaymentServiceServer.ListPaymentMethods)},
	},
	Metadata: "fiadopay/v1/payment_service.proto",
}

// RegisterPaymentServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterPaymentServiceServer(registrar grpc.ServiceRegistrar, srv PaymentServiceServer) {
	registrar.RegisterService(&PaymentServiceDesc, srv)
}

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(PaymentServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
