package hardware

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/internal/observability"
	"github.com/signalsfoundry/autoalignment/internal/srw"
	"github.com/signalsfoundry/autoalignment/model"
)

func newVirtualDevice(t *testing.T, opts ...DeviceOption) *SimulatedDevice {
	t.Helper()
	w, err := srw.GenerateWavefront(srw.DefaultWavefrontParams())
	if err != nil {
		t.Fatalf("GenerateWavefront error: %v", err)
	}
	base := []DeviceOption{WithBackend(srw.New()), WithInputBeam(w)}
	return NewSimulatedDevice(append(base, opts...)...)
}

func TestParseAxis(t *testing.T) {
	for _, a := range Axes() {
		got, err := ParseAxis(" " + string(a) + " ")
		if err != nil || got != a {
			t.Fatalf("ParseAxis(%q) = %q, %v", a, got, err)
		}
	}
	if _, err := ParseAxis("hb_roll"); !errors.Is(err, ErrUnknownAxis) {
		t.Fatalf("ParseAxis(hb_roll) error = %v, want ErrUnknownAxis", err)
	}
	if HBPitch.Kind() != Angular || VBBenderUpstream.Kind() != Linear || HBShape.Kind() != Shape {
		t.Fatalf("unexpected axis kinds")
	}
}

func TestMoveAbsoluteAndRelative(t *testing.T) {
	d := NewSimulatedDevice()
	ctx := context.Background()

	if _, err := d.Move(ctx, HBPitch, 1e-4, model.Absolute); err != nil {
		t.Fatalf("Move error: %v", err)
	}
	got, err := d.Move(ctx, HBPitch, 5e-5, model.Relative)
	if err != nil {
		t.Fatalf("Move error: %v", err)
	}
	if math.Abs(got-1.5e-4) > 1e-15 {
		t.Fatalf("Move returned %g, want 1.5e-4", got)
	}
	pos, err := d.Position(ctx, HBPitch)
	if err != nil || pos != got {
		t.Fatalf("Position = %g, %v, want %g", pos, err, got)
	}
}

func TestNewDeviceOpensSlits(t *testing.T) {
	d := NewSimulatedDevice(WithLimits(SlitsHAperture, Limits{Min: 0, Max: 2e-3}))
	p := d.Positions()
	if p[SlitsHAperture] != 2e-3 || p[SlitsVAperture] != 10e-3 {
		t.Fatalf("slit apertures = %g, %g, want fully open", p[SlitsHAperture], p[SlitsVAperture])
	}
}

func TestMoveOutsideLimits(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewDeviceCollector(reg)
	if err != nil {
		t.Fatalf("NewDeviceCollector error: %v", err)
	}
	d := NewSimulatedDevice(WithDeviceCollector(collector))
	ctx := context.Background()

	if _, err := d.Move(ctx, VBShape, 900, model.Absolute); err != nil {
		t.Fatalf("Move error: %v", err)
	}
	got, err := d.Move(ctx, VBShape, 200, model.Relative)
	if !errors.Is(err, ErrUnreachablePosition) {
		t.Fatalf("Move error = %v, want ErrUnreachablePosition", err)
	}
	if got != 900 {
		t.Fatalf("position after rejected move = %g, want 900", got)
	}
	if _, err := d.Move(ctx, Axis("hb_roll"), 1, model.Absolute); !errors.Is(err, ErrUnknownAxis) {
		t.Fatalf("Move(unknown) error = %v, want ErrUnknownAxis", err)
	}

	if v := testutil.ToFloat64(collector.AxisMoves.WithLabelValues("vb_shape", "ok")); v != 1 {
		t.Fatalf("ok moves = %v, want 1", v)
	}
	if v := testutil.ToFloat64(collector.AxisMoves.WithLabelValues("vb_shape", "error")); v != 1 {
		t.Fatalf("failed moves = %v, want 1", v)
	}
	if v := testutil.ToFloat64(collector.AxisPositions.WithLabelValues("vb_shape")); v != 900 {
		t.Fatalf("position gauge = %v, want 900", v)
	}
}

func TestMoveAndSubscribe(t *testing.T) {
	d := NewSimulatedDevice()

	var wg sync.WaitGroup
	wg.Add(1)
	var got Event
	unsubscribe := d.Subscribe(func(e Event) {
		got = e
		wg.Done()
	})

	if _, err := d.Move(context.Background(), SlitsHCenter, 1e-4, model.Absolute); err != nil {
		t.Fatalf("Move error: %v", err)
	}
	wg.Wait()
	if got.Type != EventAxisMoved || got.Axis != SlitsHCenter || got.Position != 1e-4 {
		t.Fatalf("event = %#v", got)
	}

	unsubscribe()
	if _, err := d.Move(context.Background(), SlitsHCenter, 0, model.Absolute); err != nil {
		t.Fatalf("Move error: %v", err)
	}
}

func TestAcquireWithoutBeam(t *testing.T) {
	d := NewSimulatedDevice()
	if _, err := d.Acquire(context.Background()); !errors.Is(err, ErrDetectorUnavailable) {
		t.Fatalf("Acquire error = %v, want ErrDetectorUnavailable", err)
	}
}

func TestAcquireFollowsAxes(t *testing.T) {
	d := newVirtualDevice(t)
	ctx := context.Background()

	before, err := d.Scan(ctx, model.Vertical)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if _, err := d.Move(ctx, VBPitch, 2e-5, model.Relative); err != nil {
		t.Fatalf("Move error: %v", err)
	}
	after, err := d.Scan(ctx, model.Vertical)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if centroid(after) <= centroid(before) {
		t.Fatalf("vertical centroid %g did not move up from %g after pitch increase", centroid(after), centroid(before))
	}
}

func TestAcquireExposureAndTimeout(t *testing.T) {
	clock := NewManualClock(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	d := newVirtualDevice(t, WithExposure(time.Second), WithClock(clock))

	done := make(chan error, 1)
	go func() {
		_, err := d.Acquire(context.Background())
		done <- err
	}()
	for clock.Pending() == 0 {
		time.Sleep(time.Millisecond)
	}
	clock.Advance(time.Second)
	if err := <-done; err != nil {
		t.Fatalf("Acquire error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := d.Acquire(ctx); !errors.Is(err, ErrDetectorTimeout) {
		t.Fatalf("Acquire error = %v, want ErrDetectorTimeout", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	d := NewSimulatedDevice()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = d.Position(ctx, HBTranslation)
			_ = d.Positions()
		}()
		go func() {
			defer wg.Done()
			_, _ = d.Move(ctx, HBTranslation, float64(i)*1e-6, model.Relative)
		}()
	}
	wg.Wait()

	pos, _ := d.Position(ctx, HBTranslation)
	if math.Abs(pos-45e-6) > 1e-12 {
		t.Fatalf("translation = %g, want 45e-6", pos)
	}
}

func centroid(s beam.Scan) float64 {
	var sum, total float64
	for i, v := range s.Intensity {
		sum += s.Positions[i] * v
		total += v
	}
	return sum / total
}
