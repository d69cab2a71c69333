package grpcdev

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/autoalignment/internal/logging"
	"github.com/signalsfoundry/autoalignment/internal/observability"
)

const requestIDMetadataKey = "x-request-id"

// RequestIDUnaryServerInterceptor binds the caller's request_id, or a fresh
// one, to the context together with a logger tagged with the device call:
// the RPC name and, for motor and scan calls, the axis or direction
// addressed. Every call is logged at debug with its status code and latency.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	base = logging.OrNoop(base)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if incoming := firstHeader(md, requestIDMetadataKey); incoming != "" {
				ctx = logging.ContextWithRequestID(ctx, incoming)
			}
		}

		_, rpc := observability.SplitMethod(info.FullMethod)
		callLog := base.With(append([]logging.Field{logging.String("rpc", rpc)}, targetFields(req)...)...)
		ctx, reqLog := logging.WithRequestLogger(ctx, callLog)
		ctx = logging.ContextWithLogger(ctx, reqLog)

		start := time.Now()
		resp, err := handler(ctx, req)
		reqLog.Debug(ctx, "device call",
			logging.String("code", status.Code(err).String()),
			logging.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

// targetFields names the axis or direction a device request addresses.
func targetFields(req any) []logging.Field {
	msg, ok := req.(*structpb.Struct)
	if !ok {
		return nil
	}
	var fields []logging.Field
	for _, key := range []string{fieldAxis, fieldDirection} {
		if v, ok := msg.GetFields()[key]; ok {
			if name := v.GetStringValue(); name != "" {
				fields = append(fields, logging.String(key, name))
			}
		}
	}
	return fields
}

// RequestIDUnaryClientInterceptor forwards the context's request_id, minting
// one when absent, so server logs line up with the caller's.
func RequestIDUnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx, id := logging.EnsureRequestID(ctx)
		ctx = metadata.AppendToOutgoingContext(ctx, requestIDMetadataKey, id)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func firstHeader(md metadata.MD, key string) string {
	if md == nil {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
