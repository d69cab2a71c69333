package grpcdev

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/autoalignment/engine"
	"github.com/signalsfoundry/autoalignment/hardware"
	"github.com/signalsfoundry/autoalignment/model"
)

// ErrInvalidRequest is returned for device messages that are missing fields
// or carry values of the wrong type.
var ErrInvalidRequest = errors.New("invalid device request")

// ToStatusError maps device errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, hardware.ErrUnknownAxis):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, hardware.ErrUnreachablePosition):
		return status.Error(codes.OutOfRange, err.Error())

	case errors.Is(err, hardware.ErrDetectorTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, hardware.ErrDetectorUnavailable):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, engine.ErrComputation):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, model.ErrUnknownTag):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// FromStatusError is the client-side inverse of ToStatusError: it wraps the
// sentinel matching the status code so callers can test with errors.Is.
func FromStatusError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	var sentinel error
	switch st.Code() {
	case codes.NotFound:
		sentinel = hardware.ErrUnknownAxis
	case codes.OutOfRange:
		sentinel = hardware.ErrUnreachablePosition
	case codes.DeadlineExceeded:
		sentinel = hardware.ErrDetectorTimeout
	case codes.Unavailable:
		sentinel = hardware.ErrDetectorUnavailable
	case codes.FailedPrecondition:
		sentinel = engine.ErrComputation
	case codes.InvalidArgument:
		sentinel = ErrInvalidRequest
	default:
		return err
	}
	return fmt.Errorf("%w: %s", sentinel, st.Message())
}
