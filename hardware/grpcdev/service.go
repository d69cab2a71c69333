// Package grpcdev exposes a hardware.Device over gRPC so the focusing system
// can drive motors and a detector that live in another process.
//
// Messages are google.protobuf.Struct values; the field layout is defined by
// the encode/decode helpers in codec.go.
package grpcdev

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/autoalignment/hardware"
	"github.com/signalsfoundry/autoalignment/internal/logging"
	"github.com/signalsfoundry/autoalignment/model"
)

const ServiceName = "focusing.hardware.v1.Device"

const (
	methodMove     = "/" + ServiceName + "/Move"
	methodPosition = "/" + ServiceName + "/Position"
	methodAcquire  = "/" + ServiceName + "/Acquire"
	methodScan     = "/" + ServiceName + "/Scan"

	methodImplementor = "/" + ServiceName + "/Implementor"
)

// DeviceServer is the server API for the Device service.
type DeviceServer interface {
	Move(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Position(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Acquire(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Scan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Implementor(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the Device service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DeviceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Move", Handler: handler(methodMove, DeviceServer.Move)},
		{MethodName: "Position", Handler: handler(methodPosition, DeviceServer.Position)},
		{MethodName: "Acquire", Handler: handler(methodAcquire, DeviceServer.Acquire)},
		{MethodName: "Scan", Handler: handler(methodScan, DeviceServer.Scan)},
		{MethodName: "Implementor", Handler: handler(methodImplementor, DeviceServer.Implementor)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "focusing/hardware/v1/device.proto",
}

type unaryMethod func(DeviceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(fullMethod string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DeviceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		h := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DeviceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, h)
	}
}

// Register attaches a Device service backed by dev to s.
func Register(s grpc.ServiceRegistrar, dev hardware.Device, log logging.Logger) {
	s.RegisterService(&ServiceDesc, NewDeviceService(dev, log))
}

// DeviceService implements DeviceServer on top of a hardware.Device.
type DeviceService struct {
	dev hardware.Device
	log logging.Logger
}

func NewDeviceService(dev hardware.Device, log logging.Logger) *DeviceService {
	return &DeviceService{dev: dev, log: logging.OrNoop(log)}
}

var _ DeviceServer = (*DeviceService)(nil)

func (s *DeviceService) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

func (s *DeviceService) Move(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	axis, err := axisField(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	value, err := number(req, fieldValue)
	if err != nil {
		return nil, ToStatusError(err)
	}
	name, err := text(req, fieldMovement)
	if err != nil {
		return nil, ToStatusError(err)
	}
	movement, err := model.ParseMovement(name)
	if err != nil {
		return nil, ToStatusError(err)
	}

	pos, err := s.dev.Move(ctx, axis, value, movement)
	if err != nil {
		s.logger(ctx).Warn(ctx, "move rejected",
			logging.String("axis", string(axis)),
			logging.Float("value", value),
			logging.String("movement", movement.String()),
			logging.Err(err),
		)
		return nil, ToStatusError(err)
	}
	return positionReply(pos), nil
}

func (s *DeviceService) Position(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	axis, err := axisField(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	pos, err := s.dev.Position(ctx, axis)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return positionReply(pos), nil
}

func (s *DeviceService) Acquire(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	b, err := s.dev.Acquire(ctx)
	if err != nil {
		s.logger(ctx).Warn(ctx, "acquisition failed", logging.Err(err))
		return nil, ToStatusError(err)
	}
	out, err := encodeBeam(b)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

func (s *DeviceService) Scan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := text(req, fieldDirection)
	if err != nil {
		return nil, ToStatusError(err)
	}
	dir, err := model.ParseDirection(name)
	if err != nil {
		return nil, ToStatusError(err)
	}
	scan, err := s.dev.Scan(ctx, dir)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return encodeScan(scan), nil
}

// Implementor replies with the engine family of the detector's beams.
func (s *DeviceService) Implementor(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	impl, err := s.dev.Implementor(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldImplementor: structpb.NewStringValue(impl.String()),
	}}, nil
}

func axisField(req *structpb.Struct) (hardware.Axis, error) {
	name, err := text(req, fieldAxis)
	if err != nil {
		return "", err
	}
	return hardware.ParseAxis(name)
}

func positionReply(pos float64) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldPosition: structpb.NewNumberValue(pos),
	}}
}
