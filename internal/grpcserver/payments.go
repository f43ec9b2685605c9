package grpcserver

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/rent-payments-poc/internal/payment"
	apperr "github.com/example/rent-payments-poc/pkg/errors"
)

const (
	ServiceName     = "payments.v1.PaymentStatus"
	GetStatusMethod = "/payments.v1.PaymentStatus/GetStatus"
)

// The service uses well-known message types only, so the descriptor is
// written by hand instead of generated.

type PaymentStatusServer interface {
	GetStatus(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error)
}

var PaymentStatusServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PaymentStatusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: getStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "payments/v1/status.proto",
}

func RegisterPaymentStatusServer(s grpc.ServiceRegistrar, srv PaymentStatusServer) {
	s.RegisterService(&PaymentStatusServiceDesc, srv)
}

func getStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PaymentStatusServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetStatusMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PaymentStatusServer).GetStatus(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// GetStatus is the client side of GetStatus.
func GetStatus(ctx context.Context, cc grpc.ClientConnInterface, correlationID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, GetStatusMethod, wrapperspb.String(correlationID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type StatusReader interface {
	Status(ctx context.Context, correlationID string) (*payment.StatusView, error)
}

type PaymentsServer struct {
	Status StatusReader
}

func (s *PaymentsServer) GetStatus(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	view, err := s.Status.Status(ctx, in.GetValue())
	if err != nil {
		return nil, toStatusError(err)
	}

	fields := map[string]interface{}{
		"correlationId":   view.CorrelationID,
		"state":           string(view.State),
		"tenantReference": view.TenantReference,
		"amount":          view.Amount.String(),
		"createdAt":       view.CreatedAt.UTC().Format(time.RFC3339),
	}
	if view.GatewayReceiptID != "" {
		fields["gatewayReceiptId"] = view.GatewayReceiptID
	}
	if view.FailureReason != "" {
		fields["failureReason"] = view.FailureReason
	}
	if view.ResolvedAt != nil {
		fields["resolvedAt"] = view.ResolvedAt.UTC().Format(time.RFC3339)
	}

	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatusError(err error) error {
	switch {
	case apperr.Is(err, apperr.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case apperr.Is(err, apperr.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
