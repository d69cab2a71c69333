package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewDeviceCollector(reg)
	if err != nil {
		t.Fatalf("NewDeviceCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/focusing.hardware.v1.MotorControl/Move"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("MotorControl", "Move", "OK")); got != 1 {
		t.Fatalf("device_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "device_request_duration_seconds", map[string]string{
		"service": "MotorControl",
		"method":  "Move",
	}); count != 1 {
		t.Fatalf("device_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewDeviceCollector(reg)
	if err != nil {
		t.Fatalf("NewDeviceCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/focusing.hardware.v1.MotorControl/Move"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.OutOfRange, "beyond travel")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("MotorControl", "Move", "OutOfRange")); got != 1 {
		t.Fatalf("device_requests_total error label = %v, want 1", got)
	}
}

func TestDeviceCollectorObserveMove(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewDeviceCollector(reg)
	if err != nil {
		t.Fatalf("NewDeviceCollector: %v", err)
	}
	collector.ObserveMove("hb_pitch", 0.003, nil)
	collector.ObserveMove("hb_pitch", 9, errors.New("limit"))
	collector.IncAcquisitions()

	if got := testutil.ToFloat64(collector.AxisPositions.WithLabelValues("hb_pitch")); got != 0.003 {
		t.Fatalf("device_axis_position = %v, want 0.003", got)
	}
	if got := testutil.ToFloat64(collector.AxisMoves.WithLabelValues("hb_pitch", "error")); got != 1 {
		t.Fatalf("device_axis_moves_total{outcome=error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Acquisitions); got != 1 {
		t.Fatalf("device_acquisitions_total = %v, want 1", got)
	}
}

func TestFocusingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewFocusingCollector(reg)
	if err != nil {
		t.Fatalf("NewFocusingCollector: %v", err)
	}
	collector.ObserveMotorCommand("h_bendable_mirror", "pitch", "relative", nil)
	collector.ObserveAcquisition("simulation", "shadow", 20*time.Millisecond, nil)
	collector.ObserveDistribution("shadow", "spatial", time.Millisecond, errors.New("empty"))
	collector.IncPerturbations()

	if got := testutil.ToFloat64(collector.MotorCommands.WithLabelValues("h_bendable_mirror", "pitch", "relative", "ok")); got != 1 {
		t.Fatalf("focusing_motor_commands_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Distributions.WithLabelValues("shadow", "spatial", "error")); got != 1 {
		t.Fatalf("focusing_distributions_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Perturbations); got != 1 {
		t.Fatalf("focusing_input_perturbations_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "focusing_acquisition_duration_seconds", map[string]string{"mode": "simulation"}); count != 1 {
		t.Fatalf("focusing_acquisition_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestNilCollectorsAreSafe(t *testing.T) {
	var f *FocusingCollector
	f.ObserveMotorCommand("a", "b", "c", nil)
	f.ObserveAcquisition("a", "b", time.Second, nil)
	f.ObserveDistribution("a", "b", time.Second, nil)
	f.IncPerturbations()
	var d *DeviceCollector
	d.ObserveMove("a", 1, nil)
	d.IncAcquisitions()
}

func TestCollectorReRegistrationReusesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewFocusingCollector(reg)
	if err != nil {
		t.Fatalf("first NewFocusingCollector: %v", err)
	}
	second, err := NewFocusingCollector(reg)
	if err != nil {
		t.Fatalf("second NewFocusingCollector: %v", err)
	}
	first.IncPerturbations()
	if got := testutil.ToFloat64(second.Perturbations); got != 1 {
		t.Fatalf("shared counter = %v, want 1", got)
	}
}

func TestMetricsHandlerExposesDeviceMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewDeviceCollector(reg)
	if err != nil {
		t.Fatalf("NewDeviceCollector: %v", err)
	}
	collector.ObserveMove("vb_translation", 1e-4, nil)
	collector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	collector.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"device_requests_total",
		"device_request_duration_seconds",
		"device_axis_position",
		"device_axis_moves_total",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
	if !strings.Contains(body, `axis="vb_translation"`) {
		t.Fatalf("/metrics output missing axis label: %s", body)
	}
}

func TestSplitMethod(t *testing.T) {
	cases := map[string][2]string{
		"/focusing.hardware.v1.MotorControl/Move": {"MotorControl", "Move"},
		"":        {"unknown", "unknown"},
		"garbage": {"unknown", "unknown"},
	}
	for in, want := range cases {
		s, m := SplitMethod(in)
		if s != want[0] || m != want[1] {
			t.Fatalf("SplitMethod(%q) = %q, %q; want %q, %q", in, s, m, want[0], want[1])
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
