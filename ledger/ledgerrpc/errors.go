package ledgerrpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pixelate.dev/pixelate/ledger"
)

// mapErr turns a ledger error into a gRPC status.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ledger.ErrAlreadyInitialized):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ledger.ErrBadSignature):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, ledger.ErrAccountFull):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, ledger.ErrInvalidTx):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// mapRPC turns a gRPC error back into a ledger error. Anything that is not a
// status from the service is a transport failure.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}

	var sentinel error
	switch st.Code() {
	case codes.AlreadyExists:
		sentinel = ledger.ErrAlreadyInitialized
	case codes.NotFound:
		sentinel = ledger.ErrNotFound
	case codes.PermissionDenied:
		sentinel = ledger.ErrBadSignature
	case codes.ResourceExhausted:
		sentinel = ledger.ErrAccountFull
	case codes.InvalidArgument:
		sentinel = ledger.ErrInvalidTx
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		sentinel = ledger.ErrUnavailable
	default:
		return fmt.Errorf("ledger rpc: %s: %s", st.Code(), st.Message())
	}
	if st.Message() == sentinel.Error() {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, st.Message())
}
