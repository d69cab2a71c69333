package grpcdev

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/engine"
	"github.com/signalsfoundry/autoalignment/hardware"
	"github.com/signalsfoundry/autoalignment/internal/logging"
	"github.com/signalsfoundry/autoalignment/internal/observability"
	"github.com/signalsfoundry/autoalignment/internal/srw"
	"github.com/signalsfoundry/autoalignment/model"
)

type deviceEnv struct {
	client    *Client
	collector *observability.DeviceCollector

	mu         sync.Mutex
	requestIDs []string
}

func (e *deviceEnv) lastRequestID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.requestIDs) == 0 {
		return ""
	}
	return e.requestIDs[len(e.requestIDs)-1]
}

func startDevice(t *testing.T, dev hardware.Device) *deviceEnv {
	t.Helper()
	return startDeviceWithLogger(t, dev, logging.Noop())
}

func startDeviceWithLogger(t *testing.T, dev hardware.Device, log logging.Logger) *deviceEnv {
	t.Helper()

	collector, err := observability.NewDeviceCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewDeviceCollector: %v", err)
	}
	env := &deviceEnv{collector: collector}
	capture := func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		env.mu.Lock()
		env.requestIDs = append(env.requestIDs, logging.RequestIDFromContext(ctx))
		env.mu.Unlock()
		return handler(ctx, req)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RequestIDUnaryServerInterceptor(log),
		capture,
		collector.UnaryServerInterceptor(),
	))
	Register(server, dev, logging.Noop())
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	client, conn, err := Dial(lis.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	env.client = client
	return env
}

func virtualDevice(t *testing.T) *hardware.SimulatedDevice {
	t.Helper()
	w, err := srw.GenerateWavefront(srw.DefaultWavefrontParams())
	if err != nil {
		t.Fatalf("GenerateWavefront: %v", err)
	}
	return hardware.NewSimulatedDevice(hardware.WithBackend(srw.New()), hardware.WithInputBeam(w))
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClientMoveAndPosition(t *testing.T) {
	dev := hardware.NewSimulatedDevice()
	env := startDevice(t, dev)
	ctx := testContext(t)

	if _, err := env.client.Move(ctx, hardware.HBPitch, 1e-4, model.Absolute); err != nil {
		t.Fatalf("Move: %v", err)
	}
	got, err := env.client.Move(ctx, hardware.HBPitch, 2e-5, model.Relative)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if diff := got - 1.2e-4; diff > 1e-15 || diff < -1e-15 {
		t.Fatalf("Move = %g, want 1.2e-4", got)
	}
	pos, err := env.client.Position(ctx, hardware.HBPitch)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if pos != got {
		t.Fatalf("Position = %g, want %g", pos, got)
	}
	if local, _ := dev.Position(ctx, hardware.HBPitch); local != got {
		t.Fatalf("device position = %g, want %g", local, got)
	}

	if n := testutil.ToFloat64(env.collector.RPCRequests.WithLabelValues("Device", "Move", codes.OK.String())); n != 2 {
		t.Fatalf("Move requests = %v, want 2", n)
	}
}

func TestClientErrorsMatchSentinels(t *testing.T) {
	env := startDevice(t, hardware.NewSimulatedDevice())
	ctx := testContext(t)

	if _, err := env.client.Move(ctx, hardware.Axis("hb_roll"), 1, model.Absolute); !errors.Is(err, hardware.ErrUnknownAxis) {
		t.Fatalf("Move(hb_roll) error = %v, want ErrUnknownAxis", err)
	}
	if _, err := env.client.Move(ctx, hardware.HBShape, 5000, model.Absolute); !errors.Is(err, hardware.ErrUnreachablePosition) {
		t.Fatalf("Move(shape 5000) error = %v, want ErrUnreachablePosition", err)
	}
	if _, err := env.client.Move(ctx, hardware.HBShape, 1, model.Movement(7)); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Move(movement 7) error = %v, want ErrInvalidRequest", err)
	}
	if _, err := env.client.Acquire(ctx); !errors.Is(err, hardware.ErrDetectorUnavailable) {
		t.Fatalf("Acquire without beam error = %v, want ErrDetectorUnavailable", err)
	}
	if _, err := env.client.Implementor(ctx); !errors.Is(err, hardware.ErrDetectorUnavailable) {
		t.Fatalf("Implementor without engine error = %v, want ErrDetectorUnavailable", err)
	}

	if n := testutil.ToFloat64(env.collector.RPCRequests.WithLabelValues("Device", "Move", codes.OutOfRange.String())); n != 1 {
		t.Fatalf("out-of-range Move requests = %v, want 1", n)
	}
}

func TestClientAcquireAndScan(t *testing.T) {
	dev := virtualDevice(t)
	env := startDevice(t, dev)
	ctx := testContext(t)

	impl, err := env.client.Implementor(ctx)
	if err != nil {
		t.Fatalf("Implementor: %v", err)
	}
	if impl != model.SRW {
		t.Fatalf("Implementor = %v, want srw", impl)
	}

	b, err := env.client.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	w, ok := b.(*beam.Wavefront)
	if !ok {
		t.Fatalf("Acquire returned %T, want *beam.Wavefront", b)
	}
	local, err := dev.Acquire(ctx)
	if err != nil {
		t.Fatalf("device Acquire: %v", err)
	}
	lw := local.(*beam.Wavefront)
	if w.Nx() != lw.Nx() || w.Ny() != lw.Ny() || w.EnergyEV() != lw.EnergyEV() {
		t.Fatalf("wavefront %dx%d @ %g eV, want %dx%d @ %g eV", w.Nx(), w.Ny(), w.EnergyEV(), lw.Nx(), lw.Ny(), lw.EnergyEV())
	}

	scan, err := env.client.Scan(ctx, model.Vertical)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if scan.Direction != model.Vertical {
		t.Fatalf("Scan direction = %v, want vertical", scan.Direction)
	}
	if len(scan.Positions) != hardware.ScanBins || len(scan.Intensity) != hardware.ScanBins {
		t.Fatalf("Scan bins = %d/%d, want %d", len(scan.Positions), len(scan.Intensity), hardware.ScanBins)
	}
}

func TestRequestIDForwarded(t *testing.T) {
	env := startDevice(t, hardware.NewSimulatedDevice())
	ctx := logging.ContextWithRequestID(testContext(t), "req-42")

	if _, err := env.client.Position(ctx, hardware.VBTranslation); err != nil {
		t.Fatalf("Position: %v", err)
	}
	if got := env.lastRequestID(); got != "req-42" {
		t.Fatalf("server request_id = %q, want req-42", got)
	}

	if _, err := env.client.Position(testContext(t), hardware.VBTranslation); err != nil {
		t.Fatalf("Position: %v", err)
	}
	if got := env.lastRequestID(); got == "" || got == "req-42" {
		t.Fatalf("server request_id = %q, want a fresh id", got)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServerLogsTagDeviceCall(t *testing.T) {
	var out lockedBuffer
	log := logging.New(logging.Config{Level: "debug", Format: "json", Output: &out})
	env := startDeviceWithLogger(t, hardware.NewSimulatedDevice(), log)
	ctx := logging.ContextWithRequestID(testContext(t), "req-7")

	if _, err := env.client.Move(ctx, hardware.HBPitch, 1e-4, model.Absolute); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := env.client.Move(ctx, hardware.HBPitch, 1, model.Absolute); !errors.Is(err, hardware.ErrUnreachablePosition) {
		t.Fatalf("Move out of range error = %v, want ErrUnreachablePosition", err)
	}

	logs := out.String()
	for _, want := range []string{
		`"msg":"device call"`,
		`"rpc":"Move"`,
		`"axis":"hb_pitch"`,
		`"request_id":"req-7"`,
		`"code":"OK"`,
		`"code":"OutOfRange"`,
	} {
		if !strings.Contains(logs, want) {
			t.Fatalf("server logs missing %s:\n%s", want, logs)
		}
	}
}

func TestRayBundleCodec(t *testing.T) {
	rays := []beam.Ray{
		{X: 1e-6, Y: 0.5, Z: -2e-6, Xp: 1e-7, Zp: -3e-7, Intensity: 0.8},
		{X: 4e-6, Intensity: 0.1, Lost: true},
	}
	enc, err := encodeBeam(beam.NewRayBundle(rays, 9000))
	if err != nil {
		t.Fatalf("encodeBeam: %v", err)
	}
	dec, err := decodeBeam(enc)
	if err != nil {
		t.Fatalf("decodeBeam: %v", err)
	}
	got, ok := dec.(*beam.RayBundle)
	if !ok {
		t.Fatalf("decodeBeam returned %T, want *beam.RayBundle", dec)
	}
	if got.EnergyEV() != 9000 || got.Len() != 2 || got.GoodRays() != 1 {
		t.Fatalf("decoded bundle energy=%g len=%d good=%d", got.EnergyEV(), got.Len(), got.GoodRays())
	}
	if got.Ray(0) != rays[0] || got.Ray(1) != rays[1] {
		t.Fatalf("decoded rays = %+v, want %+v", got.Rays(), rays)
	}
}

func TestDecodeRejectsMalformedBeams(t *testing.T) {
	t.Parallel()

	grid := func(n int) *structpb.Struct {
		return &structpb.Struct{Fields: map[string]*structpb.Value{
			fieldKind:      structpb.NewStringValue(kindWavefront),
			fieldEnergy:    structpb.NewNumberValue(9000),
			fieldXs:        numberList([]float64{0, 1}),
			fieldYs:        numberList([]float64{0, 1}),
			fieldIntensity: numberList(make([]float64, n)),
		}}
	}

	tests := []struct {
		name string
		msg  *structpb.Struct
	}{
		{name: "empty", msg: &structpb.Struct{}},
		{name: "unknown kind", msg: &structpb.Struct{Fields: map[string]*structpb.Value{
			fieldKind:   structpb.NewStringValue("plasma"),
			fieldEnergy: structpb.NewNumberValue(1),
		}}},
		{name: "short grid", msg: grid(3)},
		{name: "ragged rays", msg: &structpb.Struct{Fields: map[string]*structpb.Value{
			fieldKind:   structpb.NewStringValue(kindRays),
			fieldEnergy: structpb.NewNumberValue(1),
			fieldRays:   numberList(make([]float64, rayWidth+1)),
		}}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := decodeBeam(tc.msg); !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("decodeBeam(%s) error = %v, want ErrInvalidRequest", tc.name, err)
			}
		})
	}

	if _, err := decodeBeam(grid(4)); err != nil {
		t.Fatalf("decodeBeam(full grid) error = %v", err)
	}
}

func TestToStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		code    codes.Code
		wantNil bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "status passthrough", err: status.Error(codes.PermissionDenied, "denied"), code: codes.PermissionDenied},
		{name: "unknown axis", err: fmt.Errorf("%w: hb_roll", hardware.ErrUnknownAxis), code: codes.NotFound},
		{name: "unreachable", err: hardware.ErrUnreachablePosition, code: codes.OutOfRange},
		{name: "detector timeout", err: hardware.ErrDetectorTimeout, code: codes.DeadlineExceeded},
		{name: "deadline", err: context.DeadlineExceeded, code: codes.DeadlineExceeded},
		{name: "detector unavailable", err: hardware.ErrDetectorUnavailable, code: codes.Unavailable},
		{name: "computation", err: fmt.Errorf("%w: no rays", engine.ErrComputation), code: codes.FailedPrecondition},
		{name: "invalid request", err: ErrInvalidRequest, code: codes.InvalidArgument},
		{name: "unknown tag", err: model.ErrUnknownTag, code: codes.InvalidArgument},
		{name: "canceled", err: context.Canceled, code: codes.Canceled},
		{name: "fallback", err: errors.New("boom"), code: codes.Internal},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ToStatusError(tc.err)
			if tc.wantNil {
				if got != nil {
					t.Fatalf("ToStatusError(nil) = %v, want nil", got)
				}
				return
			}

			if got == nil {
				t.Fatalf("ToStatusError(%v) = nil, want error", tc.err)
			}
			if code := status.Code(got); code != tc.code {
				t.Fatalf("ToStatusError(%v) code = %v, want %v", tc.err, code, tc.code)
			}
		})
	}
}

func TestFromStatusError(t *testing.T) {
	t.Parallel()

	plain := errors.New("plain")
	if got := FromStatusError(plain); got != plain {
		t.Fatalf("FromStatusError(plain) = %v, want passthrough", got)
	}
	if got := FromStatusError(status.Error(codes.OutOfRange, "too far")); !errors.Is(got, hardware.ErrUnreachablePosition) {
		t.Fatalf("FromStatusError(OutOfRange) = %v, want ErrUnreachablePosition", got)
	}
	unmapped := status.Error(codes.Aborted, "aborted")
	if got := FromStatusError(unmapped); status.Code(got) != codes.Aborted {
		t.Fatalf("FromStatusError(Aborted) code = %v, want Aborted", status.Code(got))
	}
}
