package errutil

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var grpcCodes = map[CoreStatus]codes.Code{
	StatusBadRequest:           codes.InvalidArgument,
	StatusValidationFailed:     codes.InvalidArgument,
	StatusUnsupportedMediaType: codes.InvalidArgument,
	StatusUnauthorized:         codes.Unauthenticated,
	StatusForbidden:            codes.PermissionDenied,
	StatusNotFound:             codes.NotFound,
	StatusConflict:             codes.AlreadyExists,
	StatusUnprocessableEntity:  codes.FailedPrecondition,
	StatusPaymentRequired:      codes.ResourceExhausted,
	StatusTooManyRequests:      codes.ResourceExhausted,
	StatusClientClosedRequest:  codes.Canceled,
	StatusTimeout:              codes.DeadlineExceeded,
	StatusGatewayTimeout:       codes.DeadlineExceeded,
	StatusNotImplemented:       codes.Unimplemented,
	StatusBadGateway:           codes.Unavailable,
	StatusServiceUnavailable:   codes.Unavailable,
	StatusInternal:             codes.Internal,
}

// GRPCCode maps the status onto a gRPC code, Unknown when there is no match.
func (s CoreStatus) GRPCCode() codes.Code {
	if c, ok := grpcCodes[s]; ok {
		return c
	}
	return codes.Unknown
}

// ToGRPCError converts err into a gRPC status error. Errors that already carry
// a status pass through unchanged.
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	var base BaseError
	if errors.As(err, &base) {
		return status.Error(base.Code.GRPCCode(), base.messageWithErr())
	}
	return status.Error(codes.Internal, err.Error())
}

// UnaryServerInterceptor rewrites handler errors with ToGRPCError.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		return resp, ToGRPCError(err)
	}
}
